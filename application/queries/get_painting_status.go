package queries

import pkgerrors "atelier/pkg/errors"

// GetPaintingStatusQuery asks for every painting of a title.
type GetPaintingStatusQuery struct {
	UserID  string
	TitleID string
}

// Validate validates the GetPaintingStatusQuery
func (q GetPaintingStatusQuery) Validate() error {
	if q.UserID == "" {
		return pkgerrors.NewValidationError("user ID is required")
	}
	if q.TitleID == "" {
		return pkgerrors.NewValidationError("title ID is required")
	}
	return nil
}

// GetPaintingStatusResult is the polling payload. Paintings are newest first.
// ReferenceDataMap holds the image data of every reference a listed painting
// used, keyed by reference id.
type GetPaintingStatusResult struct {
	Paintings        []PaintingView    `json:"paintings"`
	ReferenceDataMap map[string]string `json:"referenceDataMap"`
}

// PaintingView is one painting as shown to a client.
type PaintingView struct {
	ID            string        `json:"id"`
	IdeaID        string        `json:"idea_id"`
	TitleID       string        `json:"title_id"`
	ImageURL      string        `json:"image_url"`
	Status        string        `json:"status"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
	ErrorMessage  string        `json:"error_message"`
	Summary       string        `json:"summary"`
	RetryCount    int           `json:"retry_count"`
	PromptDetails PromptDetails `json:"promptDetails"`
}

// PromptDetails explains how a painting's prompt was built.
type PromptDetails struct {
	Summary         string   `json:"summary"`
	Title           string   `json:"title"`
	Instructions    string   `json:"instructions"`
	ReferenceCount  int      `json:"referenceCount"`
	ReferenceImages []string `json:"referenceImages"`
	FullPrompt      string   `json:"fullPrompt"`
}
