package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/application/queries"
	queryhandlers "atelier/application/queries/handlers"
	"atelier/application/services"
	"atelier/infrastructure/generation/mock"
	"atelier/infrastructure/messaging"
	"atelier/infrastructure/persistence/memory"
	"atelier/infrastructure/scheduler"
	"atelier/infrastructure/storage/local"
	"atelier/interfaces/http/rest/dto"
	"atelier/pkg/auth"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/observability"
)

const testSecret = "test-secret"

type testServer struct {
	server *httptest.Server
	issuer *auth.JWTIssuer
}

type serverOptions struct {
	ideas             ports.IdeaGenerator
	writeTimeout      time.Duration
	batchWriteTimeout time.Duration
}

// slowIdeas delays every idea call.
type slowIdeas struct {
	next  ports.IdeaGenerator
	delay time.Duration
}

func (g slowIdeas) GenerateIdea(ctx context.Context, req ports.IdeaRequest) (ports.GeneratedIdea, error) {
	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return ports.GeneratedIdea{}, ctx.Err()
	}
	return g.next.GenerateIdea(ctx, req)
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, serverOptions{})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := zap.NewNop()
	if opts.ideas == nil {
		opts.ideas = mock.NewIdeaGenerator()
	}

	titles := memory.NewTitleRepository()
	ideas := memory.NewIdeaRepository()
	paintings := memory.NewPaintingRepository()
	references := memory.NewReferenceRepository()
	publisher := messaging.NewLogPublisher(logger)
	metrics := observability.NewCollector("atelier")

	sched := scheduler.NewImageScheduler(scheduler.Config{Workers: 2, QueueSize: 32}, logger, metrics)
	require.NoError(t, sched.Start())
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	uploadDir := t.TempDir()
	store, err := local.NewImageStore(uploadDir, "/uploads", logger)
	require.NoError(t, err)

	sequencer := services.NewIdeaSequencer(opts.ideas, ideas, logger)
	images := services.NewImageGenerationService(paintings, mock.NewImageGenerator(), store, sched, publisher, metrics, logger)

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: testSecret, Issuer: "atelier"})
	require.NoError(t, err)
	issuer, err := auth.NewJWTIssuer(auth.JWTConfig{SecretKey: testSecret, Issuer: "atelier", TTL: time.Hour})
	require.NoError(t, err)

	router := NewRouter(Dependencies{
		Paintings:    services.NewPaintingService(titles, references, paintings, sequencer, images, publisher, metrics, nil, logger),
		Retries:      services.NewRetryCoordinator(titles, ideas, paintings, references, sequencer, images, publisher, nil, logger),
		StatusQuery:  queryhandlers.NewGetPaintingStatusHandler(titles, ideas, paintings, references, logger),
		Titles:       services.NewTitleService(titles, nil, logger),
		References:   services.NewReferenceService(titles, references, nil, logger),
		Validator:    validator,
		ErrorHandler: pkgerrors.NewErrorHandler(logger, false),
		Metrics:      metrics,
		UploadDir:    uploadDir,
		UploadPath:   "/uploads",
		Ready:        func() bool { return true },

		BatchWriteTimeout: opts.batchWriteTimeout,
	}, logger)

	server := httptest.NewUnstartedServer(router.Setup())
	server.Config.WriteTimeout = opts.writeTimeout
	server.Start()
	t.Cleanup(server.Close)
	return &testServer{server: server, issuer: issuer}
}

func (s *testServer) do(t *testing.T, user, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		token, err := s.issuer.IssueToken(user, "", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) createTitle(t *testing.T, user string) dto.Title {
	t.Helper()
	resp, body := s.do(t, user, http.MethodPost, "/api/titles", dto.CreateTitleRequest{Title: "Harbor at dawn"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var title dto.Title
	require.NoError(t, json.Unmarshal(body, &title))
	return title
}

func TestRouter_HealthAndReady(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, _ := s.do(t, "", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouter_ReadyReportsStoppedWorkers(t *testing.T) {
	logger := zap.NewNop()
	router := NewRouter(Dependencies{
		ErrorHandler: pkgerrors.NewErrorHandler(logger, false),
		Ready:        func() bool { return false },
	}, logger)
	rec := httptest.NewRecorder()

	router.Setup().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var errResp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, string(pkgerrors.ErrorTypeUnavailable), errResp.Type)
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "", http.MethodGet, "/api/titles", nil)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errResp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, string(pkgerrors.ErrorTypeUnauthorized), errResp.Type)
}

func TestRouter_UnknownRouteRendersErrorBody(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "", http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), errResp.Type)
	assert.Equal(t, "route not found", errResp.Message)
}

func TestRouter_GenerateAndPollUntilComplete(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	title := s.createTitle(t, "user-1")

	// Act
	resp, body := s.do(t, "user-1", http.MethodPost, "/api/paintings/generate", dto.GenerateRequest{TitleID: title.ID, Quantity: 3})

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var gen dto.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &gen))
	assert.Equal(t, "Started generating 3 paintings", gen.Message)
	assert.Len(t, gen.Ideas, 3)
	assert.Len(t, gen.Paintings, 3)

	var status queries.GetPaintingStatusResult
	require.Eventually(t, func() bool {
		resp, body := s.do(t, "user-1", http.MethodGet, "/api/paintings/"+title.ID, nil)
		if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &status) != nil {
			return false
		}
		for _, p := range status.Paintings {
			if p.Status != "completed" {
				return false
			}
		}
		return len(status.Paintings) == 3
	}, 5*time.Second, 20*time.Millisecond)

	imageURL := status.Paintings[0].ImageURL
	require.True(t, strings.HasPrefix(imageURL, "/uploads/"), imageURL)
	imgResp, img := s.do(t, "", http.MethodGet, imageURL, nil)
	assert.Equal(t, http.StatusOK, imgResp.StatusCode)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))
	assert.Equal(t, "Harbor at dawn", status.Paintings[0].PromptDetails.Title)
}

func TestRouter_SlowBatchOutlivesServerWriteTimeout(t *testing.T) {
	// Arrange
	s := newTestServerWith(t, serverOptions{
		ideas:             slowIdeas{next: mock.NewIdeaGenerator(), delay: 60 * time.Millisecond},
		writeTimeout:      150 * time.Millisecond,
		batchWriteTimeout: 5 * time.Second,
	})
	title := s.createTitle(t, "user-1")

	// Act
	resp, body := s.do(t, "user-1", http.MethodPost, "/api/paintings/generate",
		dto.GenerateRequest{TitleID: title.ID, Quantity: 5})

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var gen dto.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &gen))
	assert.Len(t, gen.Ideas, 5)
	assert.Len(t, gen.Paintings, 5)
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	title := s.createTitle(t, "owner")

	tests := []struct {
		name       string
		user       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantType   pkgerrors.ErrorType
	}{
		{
			name:       "quantity above max",
			user:       "owner",
			method:     http.MethodPost,
			path:       "/api/paintings/generate",
			body:       dto.GenerateRequest{TitleID: title.ID, Quantity: 21},
			wantStatus: http.StatusBadRequest,
			wantType:   pkgerrors.ErrorTypeValidation,
		},
		{
			name:       "title id not a uuid",
			user:       "owner",
			method:     http.MethodPost,
			path:       "/api/paintings/generate",
			body:       dto.GenerateRequest{TitleID: "nope", Quantity: 1},
			wantStatus: http.StatusBadRequest,
			wantType:   pkgerrors.ErrorTypeValidation,
		},
		{
			name:       "other user's title",
			user:       "intruder",
			method:     http.MethodGet,
			path:       "/api/paintings/" + title.ID,
			wantStatus: http.StatusNotFound,
			wantType:   pkgerrors.ErrorTypeNotFound,
		},
		{
			name:       "retry unknown painting",
			user:       "owner",
			method:     http.MethodPost,
			path:       "/api/paintings/3f1f7a52-3c5b-4d0e-9d7b-1c2d3e4f5a6b/retry",
			wantStatus: http.StatusNotFound,
			wantType:   pkgerrors.ErrorTypeNotFound,
		},
		{
			name:       "regenerate with bad id",
			user:       "owner",
			method:     http.MethodPost,
			path:       "/api/paintings/not-an-id/regenerate-prompt",
			wantStatus: http.StatusBadRequest,
			wantType:   pkgerrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.user, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			var errResp pkgerrors.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, string(tt.wantType), errResp.Type)
		})
	}
}

func TestRouter_RetryRejectedWhileNotFailed(t *testing.T) {
	s := newTestServer(t)
	title := s.createTitle(t, "user-1")
	_, body := s.do(t, "user-1", http.MethodPost, "/api/paintings/generate", dto.GenerateRequest{TitleID: title.ID, Quantity: 1})
	var gen dto.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &gen))
	require.Len(t, gen.Paintings, 1)

	require.Eventually(t, func() bool {
		resp, _ := s.do(t, "user-1", http.MethodPost, "/api/paintings/"+gen.Paintings[0].ID+"/retry", nil)
		return resp.StatusCode == http.StatusConflict
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRouter_References(t *testing.T) {
	s := newTestServer(t)
	title := s.createTitle(t, "user-1")

	resp, body := s.do(t, "user-1", http.MethodPost, "/api/references", dto.UploadReferenceRequest{
		TitleID:   title.ID,
		ImageData: "data:image/png;base64,iVBORw0KGgo=",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, body = s.do(t, "user-1", http.MethodPost, "/api/references", dto.UploadReferenceRequest{
		ImageData: "iVBORw0KGgo=",
		Global:    true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, _ = s.do(t, "user-1", http.MethodPost, "/api/references", dto.UploadReferenceRequest{ImageData: "iVBORw0KGgo="})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "title reference without a title")

	resp, body = s.do(t, "user-1", http.MethodGet, "/api/references/"+title.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list dto.ReferenceList
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.References, 2)
	assert.False(t, list.References[0].Global)
	assert.True(t, list.References[1].Global)
}

func TestRouter_MetricsUseRoutePatterns(t *testing.T) {
	s := newTestServer(t)
	title := s.createTitle(t, "user-1")
	s.do(t, "user-1", http.MethodGet, "/api/titles/"+title.ID, nil)

	resp, body := s.do(t, "", http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `route="/api/titles/{titleID}"`)
	assert.NotContains(t, string(body), title.ID)
}
