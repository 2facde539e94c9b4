package ports

import (
	"context"
	"errors"

	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	"atelier/domain/events"
)

// ErrStatusMismatch is returned by PaintingRepository.Update when the stored
// status no longer matches the caller's expectation.
var ErrStatusMismatch = errors.New("painting status changed concurrently")

// TitleRepository defines the interface for title persistence.
// This is a port in hexagonal architecture; the domain doesn't know about the implementation.
type TitleRepository interface {
	Save(ctx context.Context, title *entities.Title) error
	GetByID(ctx context.Context, id valueobjects.TitleID) (*entities.Title, error)
	ListByUser(ctx context.Context, userID string) ([]*entities.Title, error)
}

// IdeaRepository stores the append-only idea log of each title.
type IdeaRepository interface {
	Save(ctx context.Context, idea *entities.Idea) error
	GetByID(ctx context.Context, id valueobjects.IdeaID) (*entities.Idea, error)

	// ListByTitle returns the title's ideas newest-first.
	ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Idea, error)
}

// PaintingRepository stores painting state records.
type PaintingRepository interface {
	// Save creates a painting. It fails if the id already exists.
	Save(ctx context.Context, painting *entities.Painting) error

	GetByID(ctx context.Context, id valueobjects.PaintingID) (*entities.Painting, error)

	// ListByTitle returns the title's paintings newest-first.
	ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Painting, error)

	// Update writes the painting only if the stored status still equals
	// expected; otherwise it returns ErrStatusMismatch and writes nothing.
	Update(ctx context.Context, painting *entities.Painting, expected valueobjects.PaintingStatus) error
}

// ReferenceRepository provides reference images for generation and display.
type ReferenceRepository interface {
	Save(ctx context.Context, ref *entities.Reference) error

	// ListForGeneration returns the title's references plus the user's global
	// ones, oldest first.
	ListForGeneration(ctx context.Context, titleID valueobjects.TitleID, userID string) ([]*entities.Reference, error)

	// GetMany resolves ids; unknown ids are skipped.
	GetMany(ctx context.Context, ids []valueobjects.ReferenceID) ([]*entities.Reference, error)
}

// EventPublisher publishes domain events after state has been persisted.
type EventPublisher interface {
	Publish(ctx context.Context, events []events.DomainEvent) error
}
