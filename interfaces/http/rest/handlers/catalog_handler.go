package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"atelier/application/services"
	"atelier/domain/core/valueobjects"
	"atelier/interfaces/http/rest/dto"
	"atelier/pkg/common"
	pkgerrors "atelier/pkg/errors"
)

// TitleHandler handles title requests
type TitleHandler struct {
	titles *services.TitleService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

func NewTitleHandler(titles *services.TitleService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *TitleHandler {
	return &TitleHandler{titles: titles, errors: errorHandler, logger: logger}
}

// Create handles POST /titles
func (h *TitleHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	var req dto.CreateTitleRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	title, err := h.titles.Create(r.Context(), userID, req.Title, req.Instructions)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, dto.FromTitle(title))
}

// Get handles GET /titles/{titleID}
func (h *TitleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	id, err := valueobjects.ParseTitleID(chi.URLParam(r, "titleID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	title, err := h.titles.Get(r.Context(), userID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, dto.FromTitle(title))
}

// List handles GET /titles
func (h *TitleHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	titles, err := h.titles.List(r.Context(), userID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	resp := dto.TitleList{Titles: make([]dto.Title, 0, len(titles))}
	for _, t := range titles {
		resp.Titles = append(resp.Titles, dto.FromTitle(t))
	}
	common.RespondJSON(w, http.StatusOK, resp)
}

// ReferenceHandler handles reference image requests
type ReferenceHandler struct {
	references *services.ReferenceService
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

func NewReferenceHandler(references *services.ReferenceService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *ReferenceHandler {
	return &ReferenceHandler{references: references, errors: errorHandler, logger: logger}
}

// Upload handles POST /references
func (h *ReferenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	var req dto.UploadReferenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var titleID valueobjects.TitleID
	if !req.Global {
		if titleID, err = valueobjects.ParseTitleID(req.TitleID); err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
			return
		}
	}

	ref, err := h.references.Upload(r.Context(), userID, titleID, req.ImageData, req.Global)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, dto.FromReference(ref))
}

// List handles GET /references/{titleID}: the title's references plus the
// user's global ones.
func (h *ReferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	titleID, err := valueobjects.ParseTitleID(chi.URLParam(r, "titleID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	refs, err := h.references.ListForTitle(r.Context(), userID, titleID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	resp := dto.ReferenceList{References: make([]dto.Reference, 0, len(refs))}
	for _, ref := range refs {
		resp.References = append(resp.References, dto.FromReference(ref))
	}
	common.RespondJSON(w, http.StatusOK, resp)
}
