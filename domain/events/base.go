package events

import (
	"time"

	"atelier/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events.
// Events represent something that has happened in the past.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypePaintingCreated       = "painting.created"
	TypePaintingStatusChanged = "painting.status_changed"
	TypePaintingIdeaReplaced  = "painting.idea_replaced"
)

// PaintingCreated is raised when a painting enters the pipeline.
type PaintingCreated struct {
	BaseEvent
	PaintingID valueobjects.PaintingID `json:"painting_id"`
	TitleID    valueobjects.TitleID    `json:"title_id"`
	IdeaID     valueobjects.IdeaID     `json:"idea_id"`
}

func NewPaintingCreated(paintingID valueobjects.PaintingID, titleID valueobjects.TitleID, ideaID valueobjects.IdeaID, at time.Time) PaintingCreated {
	return PaintingCreated{
		BaseEvent: BaseEvent{
			AggregateID: paintingID.String(),
			EventType:   TypePaintingCreated,
			Timestamp:   at,
			Version:     1,
		},
		PaintingID: paintingID,
		TitleID:    titleID,
		IdeaID:     ideaID,
	}
}

// PaintingStatusChanged is raised on every state machine edge.
type PaintingStatusChanged struct {
	BaseEvent
	PaintingID   valueobjects.PaintingID     `json:"painting_id"`
	TitleID      valueobjects.TitleID        `json:"title_id"`
	From         valueobjects.PaintingStatus `json:"from"`
	To           valueobjects.PaintingStatus `json:"to"`
	ErrorMessage string                      `json:"error_message,omitempty"`
}

func NewPaintingStatusChanged(paintingID valueobjects.PaintingID, titleID valueobjects.TitleID, from, to valueobjects.PaintingStatus, errMsg string, at time.Time) PaintingStatusChanged {
	return PaintingStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: paintingID.String(),
			EventType:   TypePaintingStatusChanged,
			Timestamp:   at,
			Version:     1,
		},
		PaintingID:   paintingID,
		TitleID:      titleID,
		From:         from,
		To:           to,
		ErrorMessage: errMsg,
	}
}

// PaintingIdeaReplaced is raised when a rejected prompt is swapped for a new idea.
type PaintingIdeaReplaced struct {
	BaseEvent
	PaintingID valueobjects.PaintingID `json:"painting_id"`
	OldIdeaID  valueobjects.IdeaID     `json:"old_idea_id"`
	NewIdeaID  valueobjects.IdeaID     `json:"new_idea_id"`
}

func NewPaintingIdeaReplaced(paintingID valueobjects.PaintingID, oldIdea, newIdea valueobjects.IdeaID, at time.Time) PaintingIdeaReplaced {
	return PaintingIdeaReplaced{
		BaseEvent: BaseEvent{
			AggregateID: paintingID.String(),
			EventType:   TypePaintingIdeaReplaced,
			Timestamp:   at,
			Version:     1,
		},
		PaintingID: paintingID,
		OldIdeaID:  oldIdea,
		NewIdeaID:  newIdea,
	}
}
