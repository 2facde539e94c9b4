package entities

import (
	"strings"
	"time"

	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// Idea is a generated concept for one painting: a short summary used as
// de-duplication context and the full prompt sent to the image service.
// Ideas are append-only.
type Idea struct {
	id         valueobjects.IdeaID
	titleID    valueobjects.TitleID
	summary    string
	fullPrompt string
	createdAt  time.Time
}

func NewIdea(titleID valueobjects.TitleID, summary, fullPrompt string) (*Idea, error) {
	summary = strings.TrimSpace(summary)
	fullPrompt = strings.TrimSpace(fullPrompt)
	if titleID.IsZero() {
		return nil, pkgerrors.NewValidationError("idea requires a title")
	}
	if summary == "" || fullPrompt == "" {
		return nil, pkgerrors.NewValidationError("idea requires both summary and full prompt")
	}
	return &Idea{
		id:         valueobjects.NewIdeaID(),
		titleID:    titleID,
		summary:    summary,
		fullPrompt: fullPrompt,
		createdAt:  time.Now().UTC(),
	}, nil
}

func ReconstructIdea(id valueobjects.IdeaID, titleID valueobjects.TitleID, summary, fullPrompt string, createdAt time.Time) *Idea {
	return &Idea{id: id, titleID: titleID, summary: summary, fullPrompt: fullPrompt, createdAt: createdAt}
}

func (i *Idea) ID() valueobjects.IdeaID       { return i.id }
func (i *Idea) TitleID() valueobjects.TitleID { return i.titleID }
func (i *Idea) Summary() string               { return i.summary }
func (i *Idea) FullPrompt() string            { return i.fullPrompt }
func (i *Idea) CreatedAt() time.Time          { return i.createdAt }

// HasPrompt reports whether the idea can be sent to the image service.
func (i *Idea) HasPrompt() bool {
	return strings.TrimSpace(i.fullPrompt) != ""
}
