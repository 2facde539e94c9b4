// Package client talks to the atelier REST API and keeps a stable view of a
// batch while its paintings are still being generated.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atelier/interfaces/http/rest/dto"
	pkgerrors "atelier/pkg/errors"
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Type    string
	Message string
	Code    string
	Details map[string]interface{}
}

// Created is the number of paintings a failed batch request still created,
// taken from the "created" detail. Zero when absent.
func (e *APIError) Created() int {
	if v, ok := e.Details["created"].(float64); ok && v > 0 {
		return int(v)
	}
	return 0
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s (%s): %s", e.Status, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Type, e.Message)
}

// Client is a thin JSON client for the /api routes.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateTitle(ctx context.Context, title, instructions string) (*dto.Title, error) {
	var out dto.Title
	err := c.do(ctx, http.MethodPost, "/api/titles", dto.CreateTitleRequest{Title: title, Instructions: instructions}, &out)
	return &out, err
}

func (c *Client) ListTitles(ctx context.Context) ([]dto.Title, error) {
	var out dto.TitleList
	if err := c.do(ctx, http.MethodGet, "/api/titles", nil, &out); err != nil {
		return nil, err
	}
	return out.Titles, nil
}

func (c *Client) GetTitle(ctx context.Context, titleID string) (*dto.Title, error) {
	var out dto.Title
	err := c.do(ctx, http.MethodGet, "/api/titles/"+url.PathEscape(titleID), nil, &out)
	return &out, err
}

// Generate starts a batch. quantity 0 lets the server pick its default.
func (c *Client) Generate(ctx context.Context, titleID string, quantity int) (*dto.GenerateResponse, error) {
	var out dto.GenerateResponse
	err := c.do(ctx, http.MethodPost, "/api/paintings/generate", dto.GenerateRequest{TitleID: titleID, Quantity: quantity}, &out)
	return &out, err
}

// Status fetches every painting of a title, newest first.
func (c *Client) Status(ctx context.Context, titleID string) (*dto.StatusResponse, error) {
	var out dto.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/paintings/"+url.PathEscape(titleID), nil, &out)
	return &out, err
}

func (c *Client) Retry(ctx context.Context, paintingID string) (*dto.CommandResponse, error) {
	var out dto.CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/paintings/"+url.PathEscape(paintingID)+"/retry", nil, &out)
	return &out, err
}

func (c *Client) RegeneratePrompt(ctx context.Context, paintingID string) (*dto.CommandResponse, error) {
	var out dto.CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/paintings/"+url.PathEscape(paintingID)+"/regenerate-prompt", nil, &out)
	return &out, err
}

func (c *Client) UploadReference(ctx context.Context, req dto.UploadReferenceRequest) (*dto.Reference, error) {
	var out dto.Reference
	err := c.do(ctx, http.MethodPost, "/api/references", req, &out)
	return &out, err
}

func (c *Client) ListReferences(ctx context.Context, titleID string) ([]dto.Reference, error) {
	var out dto.ReferenceList
	if err := c.do(ctx, http.MethodGet, "/api/references/"+url.PathEscape(titleID), nil, &out); err != nil {
		return nil, err
	}
	return out.References, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body pkgerrors.ErrorResponse
		if json.Unmarshal(data, &body) == nil && body.Type != "" {
			apiErr.Type = body.Type
			apiErr.Message = body.Message
			apiErr.Code = body.Code
			apiErr.Details = body.Details
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
