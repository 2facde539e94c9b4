package dynamodb

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/utils"
)

// ReferenceRepository stores title references under the title and global
// references under the user.
type ReferenceRepository struct {
	table *Table
}

func NewReferenceRepository(table *Table) *ReferenceRepository {
	return &ReferenceRepository{table: table}
}

type referenceItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"`
	GSI1SK      string `dynamodbav:"GSI1SK"`
	EntityType  string `dynamodbav:"EntityType"`
	ReferenceID string `dynamodbav:"ReferenceID"`
	TitleID     string `dynamodbav:"TitleID,omitempty"`
	UserID      string `dynamodbav:"UserID"`
	Scope       string `dynamodbav:"Scope"`
	ImageData   string `dynamodbav:"ImageData"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

func toReferenceItem(ref *entities.Reference) referenceItem {
	created := utils.FormatTimestamp(ref.CreatedAt())
	pk := titlePK(ref.TitleID().String())
	titleID := ref.TitleID().String()
	if ref.IsGlobal() {
		pk = userPK(ref.UserID())
		titleID = ""
	}
	return referenceItem{
		PK:          pk,
		SK:          "REFERENCE#" + created + "#" + ref.ID().String(),
		GSI1PK:      referenceGSI(ref.ID().String()),
		GSI1SK:      gsiSortMeta,
		EntityType:  entityReference,
		ReferenceID: ref.ID().String(),
		TitleID:     titleID,
		UserID:      ref.UserID(),
		Scope:       string(ref.Scope()),
		ImageData:   ref.ImageData(),
		CreatedAt:   created,
	}
}

func (i referenceItem) toEntity() (*entities.Reference, error) {
	id, err := valueobjects.ParseReferenceID(i.ReferenceID)
	if err != nil {
		return nil, err
	}
	var titleID valueobjects.TitleID
	if i.TitleID != "" {
		if titleID, err = valueobjects.ParseTitleID(i.TitleID); err != nil {
			return nil, err
		}
	}
	created, err := utils.ParseTimestamp(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructReference(id, titleID, i.UserID, i.ImageData, entities.ReferenceScope(i.Scope), created), nil
}

func (r *ReferenceRepository) Save(ctx context.Context, ref *entities.Reference) error {
	return r.table.putNew(ctx, entityReference, toReferenceItem(ref))
}

// ListForGeneration merges the title's and the user's global references,
// oldest first.
func (r *ReferenceRepository) ListForGeneration(ctx context.Context, titleID valueobjects.TitleID, userID string) ([]*entities.Reference, error) {
	titleRefs, err := r.list(ctx, titlePK(titleID.String()))
	if err != nil {
		return nil, err
	}
	globalRefs, err := r.list(ctx, userPK(userID))
	if err != nil {
		return nil, err
	}

	refs := append(titleRefs, globalRefs...)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].CreatedAt().Before(refs[j].CreatedAt()) })
	return refs, nil
}

// GetMany resolves each id through GSI1; ids that no longer exist are skipped.
func (r *ReferenceRepository) GetMany(ctx context.Context, ids []valueobjects.ReferenceID) ([]*entities.Reference, error) {
	refs := make([]*entities.Reference, 0, len(ids))
	for _, id := range ids {
		var item referenceItem
		if err := r.table.getByIndex(ctx, entityReference, referenceGSI(id.String()), &item); err != nil {
			if pkgerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		ref, err := item.toEntity()
		if err != nil {
			r.table.logger.Warn("Skipping malformed reference", zap.String("referenceID", item.ReferenceID), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (r *ReferenceRepository) list(ctx context.Context, pk string) ([]*entities.Reference, error) {
	items, err := r.table.queryPrefix(ctx, "", "PK", pk, "SK", "REFERENCE#", false)
	if err != nil {
		return nil, err
	}
	refs := make([]*entities.Reference, 0, len(items))
	for _, raw := range items {
		var item referenceItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.table.logger.Warn("Failed to parse reference item", zap.Error(err))
			continue
		}
		ref, err := item.toEntity()
		if err != nil {
			r.table.logger.Warn("Skipping malformed reference", zap.String("referenceID", item.ReferenceID), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

var _ ports.ReferenceRepository = (*ReferenceRepository)(nil)
