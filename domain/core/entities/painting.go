package entities

import (
	"errors"
	"fmt"
	"time"

	"atelier/domain/core/valueobjects"
	"atelier/domain/events"
	pkgerrors "atelier/pkg/errors"
)

// ErrInvalidTransition is the cause of every rejected status change.
var ErrInvalidTransition = errors.New("invalid painting status transition")

// Painting tracks one idea through image generation.
//
// Status changes only through the methods below, each of which checks the
// transition table in valueobjects.PaintingStatus. A rejected change leaves
// the painting untouched.
type Painting struct {
	id               valueobjects.PaintingID
	titleID          valueobjects.TitleID
	ideaID           valueobjects.IdeaID
	status           valueobjects.PaintingStatus
	imageURL         string
	errorMessage     string
	usedReferenceIDs []valueobjects.ReferenceID
	retryCount       int
	createdAt        time.Time
	updatedAt        time.Time

	events []events.DomainEvent
}

// PaintingSnapshot is the flat, persistable form of a Painting.
type PaintingSnapshot struct {
	ID               valueobjects.PaintingID
	TitleID          valueobjects.TitleID
	IdeaID           valueobjects.IdeaID
	Status           valueobjects.PaintingStatus
	ImageURL         string
	ErrorMessage     string
	UsedReferenceIDs []valueobjects.ReferenceID
	RetryCount       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPainting creates a pending painting for an already persisted idea.
func NewPainting(titleID valueobjects.TitleID, ideaID valueobjects.IdeaID) (*Painting, error) {
	if titleID.IsZero() || ideaID.IsZero() {
		return nil, pkgerrors.NewValidationError("painting requires a title and an idea")
	}
	now := time.Now().UTC()
	p := &Painting{
		id:        valueobjects.NewPaintingID(),
		titleID:   titleID,
		ideaID:    ideaID,
		status:    valueobjects.StatusPending,
		createdAt: now,
		updatedAt: now,
	}
	p.addEvent(events.NewPaintingCreated(p.id, titleID, ideaID, now))
	return p, nil
}

// ReconstructPainting rebuilds a painting from storage.
func ReconstructPainting(s PaintingSnapshot) *Painting {
	return &Painting{
		id:               s.ID,
		titleID:          s.TitleID,
		ideaID:           s.IdeaID,
		status:           s.Status,
		imageURL:         s.ImageURL,
		errorMessage:     s.ErrorMessage,
		usedReferenceIDs: append([]valueobjects.ReferenceID(nil), s.UsedReferenceIDs...),
		retryCount:       s.RetryCount,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
	}
}

// Snapshot returns a copy of the painting's state.
func (p *Painting) Snapshot() PaintingSnapshot {
	return PaintingSnapshot{
		ID:               p.id,
		TitleID:          p.titleID,
		IdeaID:           p.ideaID,
		Status:           p.status,
		ImageURL:         p.imageURL,
		ErrorMessage:     p.errorMessage,
		UsedReferenceIDs: append([]valueobjects.ReferenceID(nil), p.usedReferenceIDs...),
		RetryCount:       p.retryCount,
		CreatedAt:        p.createdAt,
		UpdatedAt:        p.updatedAt,
	}
}

func (p *Painting) ID() valueobjects.PaintingID                  { return p.id }
func (p *Painting) TitleID() valueobjects.TitleID                { return p.titleID }
func (p *Painting) IdeaID() valueobjects.IdeaID                  { return p.ideaID }
func (p *Painting) Status() valueobjects.PaintingStatus          { return p.status }
func (p *Painting) ImageURL() string                             { return p.imageURL }
func (p *Painting) ErrorMessage() string                         { return p.errorMessage }
func (p *Painting) UsedReferenceIDs() []valueobjects.ReferenceID { return p.usedReferenceIDs }
func (p *Painting) RetryCount() int                              { return p.retryCount }
func (p *Painting) CreatedAt() time.Time                         { return p.createdAt }
func (p *Painting) UpdatedAt() time.Time                         { return p.updatedAt }

// StartGeneration marks the painting as admitted to an image worker.
func (p *Painting) StartGeneration() error {
	return p.transition(valueobjects.StatusGeneratingImage, "")
}

// Complete records a generated image and the references that shaped it.
func (p *Painting) Complete(imageURL string, used []valueobjects.ReferenceID) error {
	if imageURL == "" {
		return pkgerrors.NewValidationError("completed painting requires an image URL")
	}
	if err := p.transition(valueobjects.StatusCompleted, ""); err != nil {
		return err
	}
	p.imageURL = imageURL
	p.usedReferenceIDs = append([]valueobjects.ReferenceID(nil), used...)
	return nil
}

// Fail records a non-safety failure of the current attempt.
func (p *Painting) Fail(message string) error {
	return p.transition(valueobjects.StatusFailed, message)
}

// RejectForSafety records a content-policy refusal. Once a painting has been
// retried, a refusal lands in failed so a rejected prompt cannot loop through
// regeneration forever.
func (p *Painting) RejectForSafety(message string) error {
	if p.retryCount > 0 {
		return p.transition(valueobjects.StatusFailed, "safety rejection after retry: "+message)
	}
	return p.transition(valueobjects.StatusSafetyViolation, message)
}

// CanRetry reports, as an error, whether Retry would be accepted.
func (p *Painting) CanRetry() error {
	if p.status != valueobjects.StatusFailed {
		return invalidTransition(p.status, valueobjects.StatusPending, "retry requires a failed painting")
	}
	return nil
}

// CanRegeneratePrompt reports, as an error, whether ReplaceIdea would be accepted.
func (p *Painting) CanRegeneratePrompt() error {
	if p.status != valueobjects.StatusSafetyViolation {
		return invalidTransition(p.status, valueobjects.StatusPending, "prompt regeneration requires a safety_violation painting")
	}
	return nil
}

// Retry returns a failed painting to pending with its existing prompt.
func (p *Painting) Retry() error {
	if err := p.CanRetry(); err != nil {
		return err
	}
	if err := p.transition(valueobjects.StatusPending, ""); err != nil {
		return err
	}
	p.restartAttempt()
	return nil
}

// ReplaceIdea points a safety-rejected painting at a freshly generated idea
// and returns it to pending.
func (p *Painting) ReplaceIdea(ideaID valueobjects.IdeaID) error {
	if err := p.CanRegeneratePrompt(); err != nil {
		return err
	}
	if ideaID.IsZero() || ideaID == p.ideaID {
		return pkgerrors.NewValidationError("replacement idea must be a new idea")
	}
	old := p.ideaID
	if err := p.transition(valueobjects.StatusPending, ""); err != nil {
		return err
	}
	p.ideaID = ideaID
	p.restartAttempt()
	p.addEvent(events.NewPaintingIdeaReplaced(p.id, old, ideaID, p.updatedAt))
	return nil
}

func (p *Painting) restartAttempt() {
	p.retryCount++
	p.imageURL = ""
	p.usedReferenceIDs = nil
	p.createdAt = p.updatedAt
}

func (p *Painting) transition(to valueobjects.PaintingStatus, errMsg string) error {
	if !p.status.CanTransitionTo(to) {
		return invalidTransition(p.status, to, "")
	}
	from := p.status
	p.status = to
	p.errorMessage = errMsg
	p.updatedAt = time.Now().UTC()
	p.addEvent(events.NewPaintingStatusChanged(p.id, p.titleID, from, to, errMsg, p.updatedAt))
	return nil
}

func invalidTransition(from, to valueobjects.PaintingStatus, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("cannot move painting from %s to %s", from, to)
	}
	return pkgerrors.NewConflictError(msg).
		WithCode("INVALID_TRANSITION").
		WithDetails(map[string]interface{}{"from": string(from), "to": string(to)}).
		WithCause(ErrInvalidTransition)
}

// GetUncommittedEvents returns all uncommitted domain events
func (p *Painting) GetUncommittedEvents() []events.DomainEvent {
	return p.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (p *Painting) MarkEventsAsCommitted() {
	p.events = nil
}

func (p *Painting) addEvent(event events.DomainEvent) {
	p.events = append(p.events, event)
}
