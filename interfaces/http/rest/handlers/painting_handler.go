package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"atelier/application/queries"
	queryhandlers "atelier/application/queries/handlers"
	"atelier/application/services"
	"atelier/domain/core/valueobjects"
	"atelier/interfaces/http/rest/dto"
	"atelier/pkg/common"
	pkgerrors "atelier/pkg/errors"
)

// PaintingHandler handles painting-related HTTP requests
type PaintingHandler struct {
	paintings *services.PaintingService
	retries   *services.RetryCoordinator
	status    *queryhandlers.GetPaintingStatusHandler
	errors    *pkgerrors.ErrorHandler
	logger    *zap.Logger
}

// NewPaintingHandler creates a new painting handler
func NewPaintingHandler(
	paintings *services.PaintingService,
	retries *services.RetryCoordinator,
	status *queryhandlers.GetPaintingStatusHandler,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *PaintingHandler {
	return &PaintingHandler{
		paintings: paintings,
		retries:   retries,
		status:    status,
		errors:    errorHandler,
		logger:    logger,
	}
}

// Generate handles POST /paintings/generate. Ideas and pending paintings
// exist when it returns; images continue in the background.
func (h *PaintingHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	var req dto.GenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	titleID, err := valueobjects.ParseTitleID(req.TitleID)
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	// Ideas are generated synchronously; the request context bounds them.
	result, err := h.paintings.GenerateBatch(r.Context(), userID, titleID, req.Quantity)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	resp := dto.GenerateResponse{
		Message:   fmt.Sprintf("Started generating %d paintings", len(result.Paintings)),
		Ideas:     make([]dto.Idea, 0, len(result.Ideas)),
		Paintings: make([]dto.PaintingStub, 0, len(result.Paintings)),
	}
	for _, idea := range result.Ideas {
		resp.Ideas = append(resp.Ideas, dto.FromIdea(idea))
	}
	for _, p := range result.Paintings {
		resp.Paintings = append(resp.Paintings, dto.FromPainting(p))
	}
	common.RespondJSON(w, http.StatusOK, resp)
}

// Status handles GET /paintings/{titleID}
func (h *PaintingHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.status.Handle(r.Context(), queries.GetPaintingStatusQuery{
		UserID:  userID,
		TitleID: chi.URLParam(r, "titleID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Retry handles POST /paintings/{paintingID}/retry
func (h *PaintingHandler) Retry(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.paintingTarget(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	painting, err := h.retries.Retry(r.Context(), userID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, dto.CommandResponse{
		Message:  "Painting retry started",
		Painting: dto.FromPainting(painting),
	})
}

// RegeneratePrompt handles POST /paintings/{paintingID}/regenerate-prompt
func (h *PaintingHandler) RegeneratePrompt(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.paintingTarget(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	painting, idea, err := h.retries.RegeneratePrompt(r.Context(), userID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	view := dto.FromIdea(idea)
	common.RespondJSON(w, http.StatusAccepted, dto.CommandResponse{
		Message:  "Prompt regenerated and image generation started",
		Painting: dto.FromPainting(painting),
		Idea:     &view,
	})
}

func (h *PaintingHandler) paintingTarget(r *http.Request) (string, valueobjects.PaintingID, error) {
	userID, err := currentUser(r)
	if err != nil {
		return "", valueobjects.PaintingID{}, err
	}
	id, err := valueobjects.ParsePaintingID(chi.URLParam(r, "paintingID"))
	if err != nil {
		return "", valueobjects.PaintingID{}, pkgerrors.NewValidationError(err.Error())
	}
	return userID, id, nil
}
