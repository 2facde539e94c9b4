package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/utils"
)

// PaintingRepository stores one item per painting and guards every status
// change with a condition on the stored status.
type PaintingRepository struct {
	table *Table
}

func NewPaintingRepository(table *Table) *PaintingRepository {
	return &PaintingRepository{table: table}
}

type paintingItem struct {
	PK               string   `dynamodbav:"PK"`
	SK               string   `dynamodbav:"SK"`
	GSI1PK           string   `dynamodbav:"GSI1PK"`
	GSI1SK           string   `dynamodbav:"GSI1SK"`
	EntityType       string   `dynamodbav:"EntityType"`
	PaintingID       string   `dynamodbav:"PaintingID"`
	TitleID          string   `dynamodbav:"TitleID"`
	IdeaID           string   `dynamodbav:"IdeaID"`
	Status           string   `dynamodbav:"Status"`
	ImageURL         string   `dynamodbav:"ImageURL,omitempty"`
	ErrorMessage     string   `dynamodbav:"ErrorMessage,omitempty"`
	UsedReferenceIDs []string `dynamodbav:"UsedReferenceIDs,omitempty"`
	RetryCount       int      `dynamodbav:"RetryCount"`
	CreatedAt        string   `dynamodbav:"CreatedAt"`
	UpdatedAt        string   `dynamodbav:"UpdatedAt"`
}

func toPaintingItem(p *entities.Painting) paintingItem {
	created := utils.FormatTimestamp(p.CreatedAt())
	return paintingItem{
		PK:               paintingPK(p.ID().String()),
		SK:               metadataSK,
		GSI1PK:           titlePK(p.TitleID().String()),
		GSI1SK:           "PAINTING#" + created + "#" + p.ID().String(),
		EntityType:       entityPainting,
		PaintingID:       p.ID().String(),
		TitleID:          p.TitleID().String(),
		IdeaID:           p.IdeaID().String(),
		Status:           p.Status().String(),
		ImageURL:         p.ImageURL(),
		ErrorMessage:     p.ErrorMessage(),
		UsedReferenceIDs: valueobjects.ReferenceIDStrings(p.UsedReferenceIDs()),
		RetryCount:       p.RetryCount(),
		CreatedAt:        created,
		UpdatedAt:        utils.FormatTimestamp(p.UpdatedAt()),
	}
}

func (i paintingItem) toEntity() (*entities.Painting, error) {
	var (
		snap entities.PaintingSnapshot
		err  error
	)
	if snap.ID, err = valueobjects.ParsePaintingID(i.PaintingID); err != nil {
		return nil, err
	}
	if snap.TitleID, err = valueobjects.ParseTitleID(i.TitleID); err != nil {
		return nil, err
	}
	if snap.IdeaID, err = valueobjects.ParseIdeaID(i.IdeaID); err != nil {
		return nil, err
	}
	if snap.Status, err = valueobjects.ParsePaintingStatus(i.Status); err != nil {
		return nil, err
	}
	if snap.CreatedAt, err = utils.ParseTimestamp(i.CreatedAt); err != nil {
		return nil, err
	}
	if snap.UpdatedAt, err = utils.ParseTimestamp(i.UpdatedAt); err != nil {
		return nil, err
	}
	for _, raw := range i.UsedReferenceIDs {
		id, err := valueobjects.ParseReferenceID(raw)
		if err != nil {
			return nil, err
		}
		snap.UsedReferenceIDs = append(snap.UsedReferenceIDs, id)
	}
	snap.ImageURL = i.ImageURL
	snap.ErrorMessage = i.ErrorMessage
	snap.RetryCount = i.RetryCount
	return entities.ReconstructPainting(snap), nil
}

func (r *PaintingRepository) Save(ctx context.Context, painting *entities.Painting) error {
	return r.table.putNew(ctx, entityPainting, toPaintingItem(painting))
}

func (r *PaintingRepository) GetByID(ctx context.Context, id valueobjects.PaintingID) (*entities.Painting, error) {
	var item paintingItem
	if err := r.table.getByKey(ctx, entityPainting, paintingPK(id.String()), metadataSK, &item); err != nil {
		return nil, err
	}
	return item.toEntity()
}

// ListByTitle reads the title's paintings from GSI1, newest first. The index
// is eventually consistent; pollers see a change at most one poll late.
func (r *PaintingRepository) ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Painting, error) {
	items, err := r.table.queryPrefix(ctx, r.table.indexName, "GSI1PK", titlePK(titleID.String()), "GSI1SK", "PAINTING#", true)
	if err != nil {
		return nil, err
	}

	paintings := make([]*entities.Painting, 0, len(items))
	for _, raw := range items {
		var item paintingItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.table.logger.Warn("Failed to parse painting item", zap.Error(err))
			continue
		}
		p, err := item.toEntity()
		if err != nil {
			r.table.logger.Warn("Skipping malformed painting", zap.String("paintingID", item.PaintingID), zap.Error(err))
			continue
		}
		paintings = append(paintings, p)
	}
	return paintings, nil
}

// Update replaces the painting item if its stored status equals expected.
func (r *PaintingRepository) Update(ctx context.Context, painting *entities.Painting, expected valueobjects.PaintingStatus) error {
	av, err := attributevalue.MarshalMap(toPaintingItem(painting))
	if err != nil {
		return pkgerrors.NewPersistenceError("marshal painting", err)
	}

	cond := expression.Name("PK").AttributeExists().
		And(expression.Name("Status").Equal(expression.Value(expected.String())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewPersistenceError("build expression", err)
	}

	_, err = r.table.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table.name),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("painting %s not in %s: %w", painting.ID(), expected, ports.ErrStatusMismatch)
		}
		r.table.logger.Error("Failed to update painting",
			zap.String("paintingID", painting.ID().String()),
			zap.String("status", painting.Status().String()),
			zap.Error(err),
		)
		return storeError("update painting", err)
	}

	r.table.logger.Debug("Painting updated",
		zap.String("paintingID", painting.ID().String()),
		zap.String("from", expected.String()),
		zap.String("to", painting.Status().String()),
	)
	return nil
}

var _ ports.PaintingRepository = (*PaintingRepository)(nil)
