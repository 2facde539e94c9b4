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

// TitleRepository implements ports.TitleRepository using DynamoDB
type TitleRepository struct {
	table *Table
}

func NewTitleRepository(table *Table) *TitleRepository {
	return &TitleRepository{table: table}
}

type titleItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	GSI1SK       string `dynamodbav:"GSI1SK"`
	EntityType   string `dynamodbav:"EntityType"`
	TitleID      string `dynamodbav:"TitleID"`
	UserID       string `dynamodbav:"UserID"`
	Text         string `dynamodbav:"Text"`
	Instructions string `dynamodbav:"Instructions"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

func toTitleItem(t *entities.Title) titleItem {
	created := utils.FormatTimestamp(t.CreatedAt())
	return titleItem{
		PK:           titlePK(t.ID().String()),
		SK:           metadataSK,
		GSI1PK:       userPK(t.UserID()),
		GSI1SK:       "TITLE#" + created + "#" + t.ID().String(),
		EntityType:   entityTitle,
		TitleID:      t.ID().String(),
		UserID:       t.UserID(),
		Text:         t.Text(),
		Instructions: t.Instructions(),
		CreatedAt:    created,
	}
}

func (i titleItem) toEntity() (*entities.Title, error) {
	id, err := valueobjects.ParseTitleID(i.TitleID)
	if err != nil {
		return nil, err
	}
	created, err := utils.ParseTimestamp(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructTitle(id, i.UserID, i.Text, i.Instructions, created), nil
}

func (r *TitleRepository) Save(ctx context.Context, title *entities.Title) error {
	return r.table.putNew(ctx, entityTitle, toTitleItem(title))
}

func (r *TitleRepository) GetByID(ctx context.Context, id valueobjects.TitleID) (*entities.Title, error) {
	var item titleItem
	if err := r.table.getByKey(ctx, entityTitle, titlePK(id.String()), metadataSK, &item); err != nil {
		return nil, err
	}
	return item.toEntity()
}

// ListByUser returns the user's titles newest first.
func (r *TitleRepository) ListByUser(ctx context.Context, userID string) ([]*entities.Title, error) {
	items, err := r.table.queryPrefix(ctx, r.table.indexName, "GSI1PK", userPK(userID), "GSI1SK", "TITLE#", true)
	if err != nil {
		return nil, err
	}

	titles := make([]*entities.Title, 0, len(items))
	for _, raw := range items {
		var item titleItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.table.logger.Warn("Failed to parse title item", zap.Error(err))
			continue
		}
		title, err := item.toEntity()
		if err != nil {
			r.table.logger.Warn("Skipping malformed title", zap.String("titleID", item.TitleID), zap.Error(err))
			continue
		}
		titles = append(titles, title)
	}
	return titles, nil
}

var _ ports.TitleRepository = (*TitleRepository)(nil)
