// Package mock provides deterministic generators for local development
// (GENERATOR=mock) and tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"atelier/application/ports"
	pkgerrors "atelier/pkg/errors"
)

// IdeaGenerator numbers its ideas and records every request it receives.
type IdeaGenerator struct {
	mu       sync.Mutex
	calls    int
	requests []ports.IdeaRequest

	// FailOnCall makes the n-th call (1-based) fail. Zero disables it.
	FailOnCall int

	// Repeat returns the same idea on every call, ignoring Safer.
	Repeat bool
}

func NewIdeaGenerator() *IdeaGenerator {
	return &IdeaGenerator{}
}

func (g *IdeaGenerator) GenerateIdea(ctx context.Context, req ports.IdeaRequest) (ports.GeneratedIdea, error) {
	if err := ctx.Err(); err != nil {
		return ports.GeneratedIdea{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.requests = append(g.requests, req)

	if g.FailOnCall > 0 && g.calls == g.FailOnCall {
		return ports.GeneratedIdea{}, errors.New("mock idea generator failure")
	}

	if g.Repeat {
		return ports.GeneratedIdea{
			Summary:    fmt.Sprintf("Concept 1 for %s", req.TitleText),
			FullPrompt: fmt.Sprintf("A painting of %s, composition 1.", req.TitleText),
		}, nil
	}

	summary := fmt.Sprintf("Concept %d for %s", g.calls, req.TitleText)
	prompt := fmt.Sprintf("A painting of %s, composition %d.", req.TitleText, g.calls)
	if req.Safer {
		summary += " (safer)"
		prompt += " Gentle, family friendly rendering."
	}
	return ports.GeneratedIdea{Summary: summary, FullPrompt: prompt}, nil
}

// Requests returns a copy of the requests received so far.
func (g *IdeaGenerator) Requests() []ports.IdeaRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.IdeaRequest(nil), g.requests...)
}

// SafetyMarker in a prompt makes ImageGenerator report a content-policy
// rejection.
const SafetyMarker = "[unsafe]"

// ImageGenerator returns a tiny PNG for every prompt.
type ImageGenerator struct {
	mu    sync.Mutex
	calls int

	// Err, when set, is returned by every call.
	Err error
}

func NewImageGenerator() *ImageGenerator {
	return &ImageGenerator{}
}

// pngHeader is enough for a browser to recognise the payload as PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func (g *ImageGenerator) GenerateImage(ctx context.Context, req ports.ImageRequest) (ports.GeneratedImage, error) {
	g.mu.Lock()
	g.calls++
	err := g.Err
	g.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ports.GeneratedImage{}, pkgerrors.NewUpstreamError("images", ctxErr)
	}
	if err != nil {
		return ports.GeneratedImage{}, err
	}
	if strings.Contains(req.Prompt, SafetyMarker) {
		return ports.GeneratedImage{}, pkgerrors.NewSafetyRejection("", errors.New("moderation_blocked"))
	}
	return ports.GeneratedImage{Data: append([]byte(nil), pngHeader...), Extension: "png"}, nil
}

// Calls reports how many images were requested.
func (g *ImageGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var (
	_ ports.IdeaGenerator  = (*IdeaGenerator)(nil)
	_ ports.ImageGenerator = (*ImageGenerator)(nil)
)
