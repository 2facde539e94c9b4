package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/config"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// RetryCoordinator re-admits failed and safety-rejected paintings to the
// image pipeline.
type RetryCoordinator struct {
	titles     ports.TitleRepository
	ideas      ports.IdeaRepository
	paintings  ports.PaintingRepository
	references ports.ReferenceRepository
	sequencer  *IdeaSequencer
	images     *ImageGenerationService
	publisher  ports.EventPublisher
	config     *config.DomainConfig
	logger     *zap.Logger
}

func NewRetryCoordinator(
	titles ports.TitleRepository,
	ideas ports.IdeaRepository,
	paintings ports.PaintingRepository,
	references ports.ReferenceRepository,
	sequencer *IdeaSequencer,
	images *ImageGenerationService,
	publisher ports.EventPublisher,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *RetryCoordinator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &RetryCoordinator{
		titles:     titles,
		ideas:      ideas,
		paintings:  paintings,
		references: references,
		sequencer:  sequencer,
		images:     images,
		publisher:  publisher,
		config:     cfg,
		logger:     logger,
	}
}

// Retry re-runs image generation for a failed painting with its existing
// prompt. The painting is back in pending and queued when this returns.
func (c *RetryCoordinator) Retry(ctx context.Context, userID string, id valueobjects.PaintingID) (*entities.Painting, error) {
	painting, title, err := c.loadOwnedPainting(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := painting.CanRetry(); err != nil {
		return nil, err
	}

	idea, err := c.ideas.GetByID(ctx, painting.IdeaID())
	if err != nil && !pkgerrors.IsNotFound(err) {
		return nil, err
	}
	if idea == nil || !idea.HasPrompt() {
		return nil, pkgerrors.NewValidationError("idea is missing prompt data")
	}

	refs, err := c.references.ListForGeneration(ctx, title.ID(), userID)
	if err != nil {
		return nil, err
	}

	if err := painting.Retry(); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, painting, valueobjects.StatusFailed); err != nil {
		return nil, err
	}

	c.logger.Info("Painting retry scheduled",
		zap.String("painting_id", id.String()),
		zap.Int("retry_count", painting.RetryCount()),
	)
	_ = c.images.Schedule(ctx, painting, idea.FullPrompt(), toReferenceImages(limitReferences(refs, c.config.MaxReferencesPerImage)))
	return painting, nil
}

// RegeneratePrompt replaces the idea of a safety-rejected painting with a
// safer one and re-runs image generation. The old idea stays in the log.
func (c *RetryCoordinator) RegeneratePrompt(ctx context.Context, userID string, id valueobjects.PaintingID) (*entities.Painting, *entities.Idea, error) {
	painting, title, err := c.loadOwnedPainting(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := painting.CanRegeneratePrompt(); err != nil {
		return nil, nil, err
	}

	var oldPrompt string
	old, err := c.ideas.GetByID(ctx, painting.IdeaID())
	switch {
	case err == nil:
		oldPrompt = old.FullPrompt()
	case !pkgerrors.IsNotFound(err):
		return nil, nil, err
	}

	prior, err := c.sequencer.PriorSummaries(ctx, title)
	if err != nil {
		return nil, nil, err
	}
	refs, err := c.references.ListForGeneration(ctx, title.ID(), userID)
	if err != nil {
		return nil, nil, err
	}

	idea, err := c.sequencer.GenerateNextIdea(ctx, title, prior, IdeaOptions{Safer: true, AvoidPrompt: oldPrompt})
	if err != nil {
		return nil, nil, err
	}

	if err := painting.ReplaceIdea(idea.ID()); err != nil {
		return nil, nil, err
	}
	if err := c.commit(ctx, painting, valueobjects.StatusSafetyViolation); err != nil {
		return nil, nil, err
	}

	c.logger.Info("Painting prompt regenerated",
		zap.String("painting_id", id.String()),
		zap.String("idea_id", idea.ID().String()),
		zap.Int("retry_count", painting.RetryCount()),
	)
	_ = c.images.Schedule(ctx, painting, idea.FullPrompt(), toReferenceImages(limitReferences(refs, c.config.MaxReferencesPerImage)))
	return painting, idea, nil
}

func (c *RetryCoordinator) loadOwnedPainting(ctx context.Context, userID string, id valueobjects.PaintingID) (*entities.Painting, *entities.Title, error) {
	painting, err := c.paintings.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	title, err := c.titles.GetByID(ctx, painting.TitleID())
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, nil, pkgerrors.NewNotFoundError("painting")
		}
		return nil, nil, err
	}
	if !title.OwnedBy(userID) {
		return nil, nil, pkgerrors.NewNotFoundError("painting")
	}
	return painting, title, nil
}

// commit writes the painting if nobody moved it first. Two concurrent retries
// of the same painting resolve here: one wins, the other gets a conflict.
func (c *RetryCoordinator) commit(ctx context.Context, painting *entities.Painting, expected valueobjects.PaintingStatus) error {
	if err := c.paintings.Update(ctx, painting, expected); err != nil {
		if errors.Is(err, ports.ErrStatusMismatch) {
			return pkgerrors.NewConflictError("painting was modified concurrently").
				WithCode("STATUS_CHANGED").
				WithCause(err)
		}
		return err
	}
	publishEvents(ctx, c.publisher, c.logger, painting)
	return nil
}
