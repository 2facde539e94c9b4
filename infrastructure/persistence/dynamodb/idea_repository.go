package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	"atelier/pkg/utils"
)

// IdeaRepository keeps each title's idea log under the title's partition.
type IdeaRepository struct {
	table *Table
}

func NewIdeaRepository(table *Table) *IdeaRepository {
	return &IdeaRepository{table: table}
}

type ideaItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	IdeaID     string `dynamodbav:"IdeaID"`
	TitleID    string `dynamodbav:"TitleID"`
	Summary    string `dynamodbav:"Summary"`
	FullPrompt string `dynamodbav:"FullPrompt"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

func toIdeaItem(idea *entities.Idea) ideaItem {
	created := utils.FormatTimestamp(idea.CreatedAt())
	return ideaItem{
		PK:         titlePK(idea.TitleID().String()),
		SK:         "IDEA#" + created + "#" + idea.ID().String(),
		GSI1PK:     ideaGSI(idea.ID().String()),
		GSI1SK:     gsiSortMeta,
		EntityType: entityIdea,
		IdeaID:     idea.ID().String(),
		TitleID:    idea.TitleID().String(),
		Summary:    idea.Summary(),
		FullPrompt: idea.FullPrompt(),
		CreatedAt:  created,
	}
}

func (i ideaItem) toEntity() (*entities.Idea, error) {
	id, err := valueobjects.ParseIdeaID(i.IdeaID)
	if err != nil {
		return nil, err
	}
	titleID, err := valueobjects.ParseTitleID(i.TitleID)
	if err != nil {
		return nil, err
	}
	created, err := utils.ParseTimestamp(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructIdea(id, titleID, i.Summary, i.FullPrompt, created), nil
}

func (r *IdeaRepository) Save(ctx context.Context, idea *entities.Idea) error {
	return r.table.putNew(ctx, entityIdea, toIdeaItem(idea))
}

func (r *IdeaRepository) GetByID(ctx context.Context, id valueobjects.IdeaID) (*entities.Idea, error) {
	var item ideaItem
	if err := r.table.getByIndex(ctx, entityIdea, ideaGSI(id.String()), &item); err != nil {
		return nil, err
	}
	return item.toEntity()
}

// ListByTitle returns the idea log newest first.
func (r *IdeaRepository) ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Idea, error) {
	items, err := r.table.queryPrefix(ctx, "", "PK", titlePK(titleID.String()), "SK", "IDEA#", true)
	if err != nil {
		return nil, err
	}

	ideas := make([]*entities.Idea, 0, len(items))
	for _, raw := range items {
		var item ideaItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.table.logger.Warn("Failed to parse idea item", zap.Error(err))
			continue
		}
		idea, err := item.toEntity()
		if err != nil {
			r.table.logger.Warn("Skipping malformed idea", zap.String("ideaID", item.IdeaID), zap.Error(err))
			continue
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

var _ ports.IdeaRepository = (*IdeaRepository)(nil)
