package entities

import (
	"strings"
	"time"

	"atelier/domain/config"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// Title is the user-defined subject that seeds painting batches.
type Title struct {
	id           valueobjects.TitleID
	userID       string
	text         string
	instructions string
	createdAt    time.Time
}

// NewTitle creates a title after checking the configured length limits.
func NewTitle(userID, text, instructions string, cfg *config.DomainConfig) (*Title, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	text = strings.TrimSpace(text)
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if text == "" {
		return nil, pkgerrors.NewValidationError("title text cannot be empty")
	}
	if len(text) > cfg.MaxTitleLength {
		return nil, pkgerrors.NewValidationError("title text is too long")
	}
	if len(instructions) > cfg.MaxInstructionsLength {
		return nil, pkgerrors.NewValidationError("instructions are too long")
	}

	return &Title{
		id:           valueobjects.NewTitleID(),
		userID:       userID,
		text:         text,
		instructions: strings.TrimSpace(instructions),
		createdAt:    time.Now().UTC(),
	}, nil
}

// ReconstructTitle rebuilds a title from storage without re-validating limits.
func ReconstructTitle(id valueobjects.TitleID, userID, text, instructions string, createdAt time.Time) *Title {
	return &Title{
		id:           id,
		userID:       userID,
		text:         text,
		instructions: instructions,
		createdAt:    createdAt,
	}
}

func (t *Title) ID() valueobjects.TitleID { return t.id }
func (t *Title) UserID() string           { return t.userID }
func (t *Title) Text() string             { return t.text }
func (t *Title) Instructions() string     { return t.instructions }
func (t *Title) CreatedAt() time.Time     { return t.createdAt }

// OwnedBy reports whether the title belongs to userID.
func (t *Title) OwnedBy(userID string) bool {
	return t.userID == userID
}
