package handlers

import (
	"context"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/application/queries"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/utils"
)

const noInstructions = "No custom instructions provided"

// GetPaintingStatusHandler builds the polling view of a title's paintings.
type GetPaintingStatusHandler struct {
	titles     ports.TitleRepository
	ideas      ports.IdeaRepository
	paintings  ports.PaintingRepository
	references ports.ReferenceRepository
	logger     *zap.Logger
}

// NewGetPaintingStatusHandler creates a new painting status handler
func NewGetPaintingStatusHandler(
	titles ports.TitleRepository,
	ideas ports.IdeaRepository,
	paintings ports.PaintingRepository,
	references ports.ReferenceRepository,
	logger *zap.Logger,
) *GetPaintingStatusHandler {
	return &GetPaintingStatusHandler{
		titles:     titles,
		ideas:      ideas,
		paintings:  paintings,
		references: references,
		logger:     logger,
	}
}

// Handle executes the painting status query
func (h *GetPaintingStatusHandler) Handle(ctx context.Context, query queries.GetPaintingStatusQuery) (*queries.GetPaintingStatusResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	titleID, err := valueobjects.ParseTitleID(query.TitleID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	title, err := h.titles.GetByID(ctx, titleID)
	if err != nil {
		return nil, err
	}
	if !title.OwnedBy(query.UserID) {
		return nil, pkgerrors.NewNotFoundError("title")
	}

	paintings, err := h.paintings.ListByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}

	result := &queries.GetPaintingStatusResult{
		Paintings:        make([]queries.PaintingView, 0, len(paintings)),
		ReferenceDataMap: map[string]string{},
	}
	if len(paintings) == 0 {
		return result, nil
	}

	ideas, err := h.ideas.ListByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}
	ideasByID := make(map[valueobjects.IdeaID]*entities.Idea, len(ideas))
	for _, idea := range ideas {
		ideasByID[idea.ID()] = idea
	}

	result.ReferenceDataMap = h.referenceData(ctx, titleID, paintings)

	for _, p := range paintings {
		result.Paintings = append(result.Paintings, buildPaintingView(p, title, ideasByID[p.IdeaID()], result.ReferenceDataMap))
	}
	return result, nil
}

// referenceData resolves every reference id the paintings used. A lookup
// failure degrades to an empty map rather than failing the poll.
func (h *GetPaintingStatusHandler) referenceData(ctx context.Context, titleID valueobjects.TitleID, paintings []*entities.Painting) map[string]string {
	data := map[string]string{}

	seen := make(map[valueobjects.ReferenceID]struct{})
	var ids []valueobjects.ReferenceID
	for _, p := range paintings {
		for _, id := range p.UsedReferenceIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return data
	}

	refs, err := h.references.GetMany(ctx, ids)
	if err != nil {
		h.logger.Warn("Failed to load reference data",
			zap.String("title_id", titleID.String()),
			zap.Int("references", len(ids)),
			zap.Error(err),
		)
		return data
	}
	for _, ref := range refs {
		data[ref.ID().String()] = ref.ImageData()
	}
	return data
}

func buildPaintingView(p *entities.Painting, title *entities.Title, idea *entities.Idea, refData map[string]string) queries.PaintingView {
	used := make([]string, 0, len(p.UsedReferenceIDs()))
	for _, id := range p.UsedReferenceIDs() {
		if _, ok := refData[id.String()]; ok {
			used = append(used, id.String())
		}
	}

	var summary, fullPrompt string
	if idea != nil {
		summary = idea.Summary()
		fullPrompt = idea.FullPrompt()
	}
	instructions := title.Instructions()
	if instructions == "" {
		instructions = noInstructions
	}

	return queries.PaintingView{
		ID:           p.ID().String(),
		IdeaID:       p.IdeaID().String(),
		TitleID:      p.TitleID().String(),
		ImageURL:     p.ImageURL(),
		Status:       p.Status().String(),
		CreatedAt:    utils.FormatTimestamp(p.CreatedAt()),
		UpdatedAt:    utils.FormatTimestamp(p.UpdatedAt()),
		ErrorMessage: p.ErrorMessage(),
		Summary:      summary,
		RetryCount:   p.RetryCount(),
		PromptDetails: queries.PromptDetails{
			Summary:         summary,
			Title:           title.Text(),
			Instructions:    instructions,
			ReferenceCount:  len(used),
			ReferenceImages: used,
			FullPrompt:      fullPrompt,
		},
	}
}
