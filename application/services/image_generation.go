package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// terminalWriteTimeout bounds the final status write, which runs even if the
// scheduler context was cancelled during the upstream call.
const terminalWriteTimeout = 10 * time.Second

// PipelineMetrics receives pipeline counters. *observability.Collector implements it.
type PipelineMetrics interface {
	RecordPaintingsCreated(n int)
	RecordPaintingOutcome(status string)
}

type nopMetrics struct{}

func (nopMetrics) RecordPaintingsCreated(int)   {}
func (nopMetrics) RecordPaintingOutcome(string) {}

// ImageGenerationService turns a pending painting into a scheduler task and
// runs the image phase for it: admission, upstream call, terminal write.
type ImageGenerationService struct {
	paintings ports.PaintingRepository
	generator ports.ImageGenerator
	store     ports.ImageStore
	queue     ports.ImageQueue
	publisher ports.EventPublisher
	metrics   PipelineMetrics
	logger    *zap.Logger
}

func NewImageGenerationService(
	paintings ports.PaintingRepository,
	generator ports.ImageGenerator,
	store ports.ImageStore,
	queue ports.ImageQueue,
	publisher ports.EventPublisher,
	metrics PipelineMetrics,
	logger *zap.Logger,
) *ImageGenerationService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ImageGenerationService{
		paintings: paintings,
		generator: generator,
		store:     store,
		queue:     queue,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Schedule enqueues image generation for a pending painting. If the queue
// refuses the task the painting is marked failed so it never sits in pending
// with nothing to advance it; the returned error is informational.
func (s *ImageGenerationService) Schedule(ctx context.Context, painting *entities.Painting, prompt string, refs []ports.ReferenceImage) error {
	task := ports.ImageTask{
		PaintingID: painting.ID(),
		Execute: func(taskCtx context.Context) error {
			return s.run(taskCtx, painting.ID(), prompt, refs)
		},
	}

	err := s.queue.Enqueue(task)
	if err == nil {
		return nil
	}

	s.logger.Error("Image task not admitted",
		zap.String("painting_id", painting.ID().String()),
		zap.Error(err),
	)
	if failErr := painting.Fail(fmt.Sprintf("image generation could not be scheduled: %v", err)); failErr != nil {
		return err
	}
	if upErr := s.paintings.Update(ctx, painting, valueobjects.StatusPending); upErr != nil {
		s.logger.Error("Failed to record scheduling failure",
			zap.String("painting_id", painting.ID().String()),
			zap.Error(upErr),
		)
		return err
	}
	s.metrics.RecordPaintingOutcome(string(valueobjects.StatusFailed))
	s.publish(ctx, painting)
	return err
}

// run executes on a scheduler worker.
func (s *ImageGenerationService) run(ctx context.Context, id valueobjects.PaintingID, prompt string, refs []ports.ReferenceImage) error {
	painting, err := s.paintings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load painting %s: %w", id, err)
	}

	// Admission.
	if err := painting.StartGeneration(); err != nil {
		return err
	}
	if err := s.paintings.Update(ctx, painting, valueobjects.StatusPending); err != nil {
		return fmt.Errorf("mark painting %s generating: %w", id, err)
	}
	s.publish(ctx, painting)

	image, genErr := s.generator.GenerateImage(ctx, ports.ImageRequest{
		PaintingID: id,
		Prompt:     prompt,
		References: refs,
	})

	var imageURL string
	if genErr == nil {
		imageURL, genErr = s.storeImage(ctx, id, image)
	}

	// The terminal write must land even when shutdown cancelled the upstream call.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	switch {
	case genErr == nil:
		err = painting.Complete(imageURL, referenceIDs(refs))
	case pkgerrors.IsSafety(genErr):
		err = painting.RejectForSafety(errorMessage(genErr))
	default:
		err = painting.Fail(errorMessage(genErr))
	}
	if err != nil {
		return err
	}

	if err := s.writeOutcome(writeCtx, ctx, painting); err != nil {
		s.logger.Error("Failed to record painting outcome",
			zap.String("painting_id", id.String()),
			zap.String("status", string(painting.Status())),
			zap.Error(err),
		)
		return err
	}
	s.metrics.RecordPaintingOutcome(string(painting.Status()))
	s.publish(writeCtx, painting)

	s.logger.Info("Painting finished",
		zap.String("painting_id", id.String()),
		zap.String("status", string(painting.Status())),
	)
	return genErr
}

// writeOutcome stores the terminal status, trying once more with a fresh
// deadline when the first write fails for a reason other than a lost race.
// A painting whose outcome cannot be written stays in generating_image.
func (s *ImageGenerationService) writeOutcome(writeCtx, parent context.Context, painting *entities.Painting) error {
	err := s.paintings.Update(writeCtx, painting, valueobjects.StatusGeneratingImage)
	if err == nil || errors.Is(err, ports.ErrStatusMismatch) || pkgerrors.IsNotFound(err) {
		return err
	}
	s.logger.Warn("Retrying painting outcome write",
		zap.String("painting_id", painting.ID().String()),
		zap.Error(err),
	)
	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), terminalWriteTimeout)
	defer cancel()
	return s.paintings.Update(retryCtx, painting, valueobjects.StatusGeneratingImage)
}

func (s *ImageGenerationService) storeImage(ctx context.Context, id valueobjects.PaintingID, image ports.GeneratedImage) (string, error) {
	if len(image.Data) == 0 {
		if image.URL == "" {
			return "", pkgerrors.NewUpstreamError("images", errors.New("response contained no image"))
		}
		return image.URL, nil
	}
	ext := image.Extension
	if ext == "" {
		ext = "png"
	}
	url, err := s.store.Save(ctx, fmt.Sprintf("%s.%s", id, ext), image.Data)
	if err != nil {
		return "", pkgerrors.NewPersistenceError("store image", err)
	}
	return url, nil
}

func (s *ImageGenerationService) publish(ctx context.Context, painting *entities.Painting) {
	publishEvents(ctx, s.publisher, s.logger, painting)
}

func referenceIDs(refs []ports.ReferenceImage) []valueobjects.ReferenceID {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]valueobjects.ReferenceID, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

// errorMessage is the user-facing text stored on a failed painting.
func errorMessage(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		if appErr.Cause != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
		}
		return appErr.Message
	}
	return err.Error()
}

func toReferenceImages(refs []*entities.Reference) []ports.ReferenceImage {
	out := make([]ports.ReferenceImage, 0, len(refs))
	for _, r := range refs {
		out = append(out, ports.ReferenceImage{ID: r.ID(), ImageData: r.ImageData()})
	}
	return out
}
