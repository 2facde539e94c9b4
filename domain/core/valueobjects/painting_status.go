package valueobjects

import "fmt"

// PaintingStatus is the lifecycle state of a single painting.
type PaintingStatus string

const (
	StatusPending         PaintingStatus = "pending"
	StatusGeneratingImage PaintingStatus = "generating_image"
	StatusCompleted       PaintingStatus = "completed"
	StatusFailed          PaintingStatus = "failed"
	StatusSafetyViolation PaintingStatus = "safety_violation"
)

// transitions lists every legal edge. pending -> failed covers an item that
// was never admitted to the image queue.
var transitions = map[PaintingStatus][]PaintingStatus{
	StatusPending:         {StatusGeneratingImage, StatusFailed},
	StatusGeneratingImage: {StatusCompleted, StatusFailed, StatusSafetyViolation},
	StatusFailed:          {StatusPending},
	StatusSafetyViolation: {StatusPending},
	StatusCompleted:       nil,
}

// ParsePaintingStatus validates a stored status string.
func ParsePaintingStatus(s string) (PaintingStatus, error) {
	st := PaintingStatus(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown painting status %q", s)
	}
	return st, nil
}

func (s PaintingStatus) String() string { return string(s) }

// CanTransitionTo reports whether next is a legal successor of s.
func (s PaintingStatus) CanTransitionTo(next PaintingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the image phase has finished for this attempt.
func (s PaintingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSafetyViolation:
		return true
	}
	return false
}
