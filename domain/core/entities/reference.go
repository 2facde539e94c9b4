package entities

import (
	"time"

	"atelier/domain/config"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// ReferenceScope decides which generations a reference image applies to.
type ReferenceScope string

const (
	ScopeTitle  ReferenceScope = "title"
	ScopeGlobal ReferenceScope = "global"
)

// Reference is an input image that biases image generation. Global references
// belong to a user and apply to all of that user's titles.
type Reference struct {
	id        valueobjects.ReferenceID
	titleID   valueobjects.TitleID
	userID    string
	imageData string
	scope     ReferenceScope
	createdAt time.Time
}

// NewReference creates a reference. imageData is a base64 data URL or raw base64.
func NewReference(userID string, titleID valueobjects.TitleID, imageData string, global bool, cfg *config.DomainConfig) (*Reference, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if imageData == "" {
		return nil, pkgerrors.NewValidationError("image data cannot be empty")
	}
	if len(imageData) > cfg.MaxReferenceBytes {
		return nil, pkgerrors.NewValidationError("reference image is too large")
	}
	scope := ScopeTitle
	if global {
		scope = ScopeGlobal
	} else if titleID.IsZero() {
		return nil, pkgerrors.NewValidationError("title reference requires a title")
	}
	return &Reference{
		id:        valueobjects.NewReferenceID(),
		titleID:   titleID,
		userID:    userID,
		imageData: imageData,
		scope:     scope,
		createdAt: time.Now().UTC(),
	}, nil
}

func ReconstructReference(id valueobjects.ReferenceID, titleID valueobjects.TitleID, userID, imageData string, scope ReferenceScope, createdAt time.Time) *Reference {
	return &Reference{id: id, titleID: titleID, userID: userID, imageData: imageData, scope: scope, createdAt: createdAt}
}

func (r *Reference) ID() valueobjects.ReferenceID  { return r.id }
func (r *Reference) TitleID() valueobjects.TitleID { return r.titleID }
func (r *Reference) UserID() string                { return r.userID }
func (r *Reference) ImageData() string             { return r.imageData }
func (r *Reference) Scope() ReferenceScope         { return r.scope }
func (r *Reference) IsGlobal() bool                { return r.scope == ScopeGlobal }
func (r *Reference) CreatedAt() time.Time          { return r.createdAt }
