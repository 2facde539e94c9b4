package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/config"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// BatchResult is what a batch request returns synchronously.
type BatchResult struct {
	Ideas     []*entities.Idea
	Paintings []*entities.Painting
}

// PaintingService runs the batch pipeline: N sequential ideas, each followed
// by a pending painting handed to the image scheduler.
type PaintingService struct {
	titles     ports.TitleRepository
	references ports.ReferenceRepository
	paintings  ports.PaintingRepository
	sequencer  *IdeaSequencer
	images     *ImageGenerationService
	publisher  ports.EventPublisher
	metrics    PipelineMetrics
	config     *config.DomainConfig
	logger     *zap.Logger
}

func NewPaintingService(
	titles ports.TitleRepository,
	references ports.ReferenceRepository,
	paintings ports.PaintingRepository,
	sequencer *IdeaSequencer,
	images *ImageGenerationService,
	publisher ports.EventPublisher,
	metrics PipelineMetrics,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *PaintingService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &PaintingService{
		titles:     titles,
		references: references,
		paintings:  paintings,
		sequencer:  sequencer,
		images:     images,
		publisher:  publisher,
		metrics:    metrics,
		config:     cfg,
		logger:     logger,
	}
}

// GenerateBatch creates quantity idea+painting pairs before returning and
// leaves the image phase to the scheduler. A quantity of 0 means the default.
//
// Parameter and title errors are returned before anything is written. If idea
// generation fails part-way, the paintings created so far stay scheduled and
// the error carries the created count.
func (s *PaintingService) GenerateBatch(ctx context.Context, userID string, titleID valueobjects.TitleID, quantity int) (*BatchResult, error) {
	if quantity == 0 {
		quantity = s.config.DefaultBatchQuantity
	}
	if quantity < 1 || quantity > s.config.MaxBatchQuantity {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("quantity must be between 1 and %d", s.config.MaxBatchQuantity))
	}

	title, err := loadOwnedTitle(ctx, s.titles, titleID, userID)
	if err != nil {
		return nil, err
	}

	refs, err := s.references.ListForGeneration(ctx, title.ID(), userID)
	if err != nil {
		return nil, err
	}
	refImages := toReferenceImages(limitReferences(refs, s.config.MaxReferencesPerImage))

	prior, err := s.sequencer.PriorSummaries(ctx, title)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting painting batch",
		zap.String("title_id", title.ID().String()),
		zap.Int("quantity", quantity),
		zap.Int("prior_ideas", len(prior)),
		zap.Int("references", len(refImages)),
	)

	result := &BatchResult{}
	ideas, err := s.sequencer.GenerateBatch(ctx, title, prior, quantity, func(idea *entities.Idea) error {
		painting, err := entities.NewPainting(title.ID(), idea.ID())
		if err != nil {
			return err
		}
		if err := s.paintings.Save(ctx, painting); err != nil {
			return err
		}
		publishEvents(ctx, s.publisher, s.logger, painting)
		result.Paintings = append(result.Paintings, painting)
		s.metrics.RecordPaintingsCreated(1)

		// Queue refusal is recorded on the painting itself.
		_ = s.images.Schedule(ctx, painting, idea.FullPrompt(), refImages)
		return nil
	})
	result.Ideas = ideas

	if err != nil {
		if appErr := pkgerrors.GetAppError(err); appErr != nil {
			details := map[string]interface{}{"created": len(result.Paintings), "requested": quantity}
			for k, v := range appErr.Details {
				details[k] = v
			}
			appErr.WithDetails(details)
		}
		return result, err
	}
	return result, nil
}

func loadOwnedTitle(ctx context.Context, titles ports.TitleRepository, id valueobjects.TitleID, userID string) (*entities.Title, error) {
	title, err := titles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Other users' titles are reported as missing rather than forbidden.
	if !title.OwnedBy(userID) {
		return nil, pkgerrors.NewNotFoundError("title")
	}
	return title, nil
}

func publishEvents(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, painting *entities.Painting) {
	events := painting.GetUncommittedEvents()
	if publisher == nil || len(events) == 0 {
		painting.MarkEventsAsCommitted()
		return
	}
	if err := publisher.Publish(ctx, events); err != nil {
		logger.Warn("Failed to publish painting events",
			zap.String("painting_id", painting.ID().String()),
			zap.Error(err),
		)
	}
	painting.MarkEventsAsCommitted()
}
