package ports

import (
	"context"

	"atelier/domain/core/valueobjects"
)

// IdeaRequest is the input of one idea generation call.
type IdeaRequest struct {
	TitleText    string
	Instructions string

	// PriorSummaries holds every summary already accepted for the title,
	// across earlier batches and earlier items of the current batch.
	PriorSummaries []string

	// Safer asks for a concept that avoids the content that got a previous
	// prompt rejected.
	Safer bool
}

// GeneratedIdea is the structured output of an idea generation call.
type GeneratedIdea struct {
	Summary    string `json:"summary"`
	FullPrompt string `json:"fullPrompt"`
}

// IdeaGenerator produces painting concepts from a title.
type IdeaGenerator interface {
	GenerateIdea(ctx context.Context, req IdeaRequest) (GeneratedIdea, error)
}

// ReferenceImage is a reference handed to the image service.
type ReferenceImage struct {
	ID        valueobjects.ReferenceID
	ImageData string
}

// ImageRequest is the input of one image generation call.
type ImageRequest struct {
	PaintingID valueobjects.PaintingID
	Prompt     string
	References []ReferenceImage
}

// GeneratedImage holds either raw image bytes or a hosted URL.
type GeneratedImage struct {
	Data      []byte
	Extension string
	URL       string
}

// ImageGenerator renders a prompt into an image. Content-policy refusals are
// reported as errors of type SAFETY_REJECTION, everything else as
// UPSTREAM_GENERATION.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (GeneratedImage, error)
}

// ImageStore persists generated image bytes and returns the public URL path.
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// ImageTask is one unit of work for the image scheduler.
type ImageTask struct {
	PaintingID valueobjects.PaintingID
	Execute    func(ctx context.Context) error
}

// ImageQueue admits tasks to a bounded pool of image workers. Enqueue never
// blocks; it fails when the queue is full or stopped.
type ImageQueue interface {
	Enqueue(task ImageTask) error
}
