// Package dto holds the request and response bodies of the REST API. The
// paintctl client decodes the same types.
package dto

import (
	"atelier/application/queries"
	"atelier/domain/core/entities"
	"atelier/pkg/utils"
)

// GenerateRequest starts a batch. A missing or zero quantity means the
// default batch size.
type GenerateRequest struct {
	TitleID  string `json:"titleId" validate:"required,uuid"`
	Quantity int    `json:"quantity"`
}

// GenerateResponse lists the ideas created before the response was sent.
type GenerateResponse struct {
	Message   string         `json:"message"`
	Ideas     []Idea         `json:"ideas"`
	Paintings []PaintingStub `json:"paintings"`
}

type Idea struct {
	ID         string `json:"id"`
	TitleID    string `json:"titleId"`
	Summary    string `json:"summary"`
	FullPrompt string `json:"fullPrompt"`
	CreatedAt  string `json:"createdAt"`
}

// PaintingStub is a painting as of the moment a command accepted it.
type PaintingStub struct {
	ID         string `json:"id"`
	IdeaID     string `json:"ideaId"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
}

// CommandResponse answers retry and regenerate-prompt.
type CommandResponse struct {
	Message  string       `json:"message"`
	Painting PaintingStub `json:"painting"`
	Idea     *Idea        `json:"idea,omitempty"`
}

// StatusResponse is the polling payload.
type StatusResponse = queries.GetPaintingStatusResult

type CreateTitleRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Instructions string `json:"instructions" validate:"max=4000"`
}

type Title struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Instructions string `json:"instructions"`
	CreatedAt    string `json:"createdAt"`
}

type TitleList struct {
	Titles []Title `json:"titles"`
}

// UploadReferenceRequest stores a reference image. ImageData is a data URL
// or bare base64. Global references apply to every title of the user.
type UploadReferenceRequest struct {
	TitleID   string `json:"titleId" validate:"omitempty,uuid"`
	ImageData string `json:"imageData" validate:"required"`
	Global    bool   `json:"isGlobal"`
}

type Reference struct {
	ID        string `json:"id"`
	TitleID   string `json:"titleId,omitempty"`
	Global    bool   `json:"isGlobal"`
	CreatedAt string `json:"createdAt"`
}

type ReferenceList struct {
	References []Reference `json:"references"`
}

func FromIdea(i *entities.Idea) Idea {
	return Idea{
		ID:         i.ID().String(),
		TitleID:    i.TitleID().String(),
		Summary:    i.Summary(),
		FullPrompt: i.FullPrompt(),
		CreatedAt:  utils.FormatTimestamp(i.CreatedAt()),
	}
}

func FromPainting(p *entities.Painting) PaintingStub {
	return PaintingStub{
		ID:         p.ID().String(),
		IdeaID:     p.IdeaID().String(),
		Status:     string(p.Status()),
		RetryCount: p.RetryCount(),
	}
}

func FromTitle(t *entities.Title) Title {
	return Title{
		ID:           t.ID().String(),
		Title:        t.Text(),
		Instructions: t.Instructions(),
		CreatedAt:    utils.FormatTimestamp(t.CreatedAt()),
	}
}

func FromReference(r *entities.Reference) Reference {
	out := Reference{
		ID:        r.ID().String(),
		Global:    r.IsGlobal(),
		CreatedAt: utils.FormatTimestamp(r.CreatedAt()),
	}
	if !r.TitleID().IsZero() {
		out.TitleID = r.TitleID().String()
	}
	return out
}
