package services

import (
	"context"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/config"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
)

// TitleService is the thin CRUD surface over titles.
type TitleService struct {
	titles ports.TitleRepository
	config *config.DomainConfig
	logger *zap.Logger
}

func NewTitleService(titles ports.TitleRepository, cfg *config.DomainConfig, logger *zap.Logger) *TitleService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &TitleService{titles: titles, config: cfg, logger: logger}
}

func (s *TitleService) Create(ctx context.Context, userID, text, instructions string) (*entities.Title, error) {
	title, err := entities.NewTitle(userID, text, instructions, s.config)
	if err != nil {
		return nil, err
	}
	if err := s.titles.Save(ctx, title); err != nil {
		return nil, err
	}
	s.logger.Info("Title created",
		zap.String("title_id", title.ID().String()),
		zap.String("user_id", userID),
	)
	return title, nil
}

// Get returns the title if userID owns it.
func (s *TitleService) Get(ctx context.Context, userID string, id valueobjects.TitleID) (*entities.Title, error) {
	return loadOwnedTitle(ctx, s.titles, id, userID)
}

func (s *TitleService) List(ctx context.Context, userID string) ([]*entities.Title, error) {
	return s.titles.ListByUser(ctx, userID)
}

// ReferenceService stores reference images.
type ReferenceService struct {
	titles     ports.TitleRepository
	references ports.ReferenceRepository
	config     *config.DomainConfig
	logger     *zap.Logger
}

func NewReferenceService(titles ports.TitleRepository, references ports.ReferenceRepository, cfg *config.DomainConfig, logger *zap.Logger) *ReferenceService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ReferenceService{titles: titles, references: references, config: cfg, logger: logger}
}

// Upload stores a reference. A global reference ignores titleID.
func (s *ReferenceService) Upload(ctx context.Context, userID string, titleID valueobjects.TitleID, imageData string, global bool) (*entities.Reference, error) {
	if global {
		titleID = valueobjects.TitleID{}
	} else if !titleID.IsZero() {
		if _, err := loadOwnedTitle(ctx, s.titles, titleID, userID); err != nil {
			return nil, err
		}
	}

	ref, err := entities.NewReference(userID, titleID, imageData, global, s.config)
	if err != nil {
		return nil, err
	}
	if err := s.references.Save(ctx, ref); err != nil {
		return nil, err
	}
	s.logger.Info("Reference stored",
		zap.String("reference_id", ref.ID().String()),
		zap.String("scope", string(ref.Scope())),
	)
	return ref, nil
}

// ListForTitle returns what a generation for the title would use.
func (s *ReferenceService) ListForTitle(ctx context.Context, userID string, titleID valueobjects.TitleID) ([]*entities.Reference, error) {
	if _, err := loadOwnedTitle(ctx, s.titles, titleID, userID); err != nil {
		return nil, err
	}
	return s.references.ListForGeneration(ctx, titleID, userID)
}

// limitReferences keeps the newest max references.
func limitReferences(refs []*entities.Reference, max int) []*entities.Reference {
	if max <= 0 || len(refs) <= max {
		return refs
	}
	return refs[len(refs)-max:]
}
