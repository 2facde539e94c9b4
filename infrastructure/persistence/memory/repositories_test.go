package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

func TestPaintingRepository_UpdateIsConditionalOnStatus(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewPaintingRepository()
	p, err := entities.NewPainting(valueobjects.NewTitleID(), valueobjects.NewIdeaID())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))
	require.NoError(t, p.StartGeneration())

	// Act
	errWrong := repo.Update(ctx, p, valueobjects.StatusFailed)
	errRight := repo.Update(ctx, p, valueobjects.StatusPending)
	errStale := repo.Update(ctx, p, valueobjects.StatusPending)

	// Assert
	assert.ErrorIs(t, errWrong, ports.ErrStatusMismatch)
	assert.NoError(t, errRight)
	assert.ErrorIs(t, errStale, ports.ErrStatusMismatch)
	stored, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobjects.StatusGeneratingImage, stored.Status())
}

func TestPaintingRepository_StoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewPaintingRepository()
	p, err := entities.NewPainting(valueobjects.NewTitleID(), valueobjects.NewIdeaID())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))

	require.NoError(t, p.StartGeneration())

	stored, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobjects.StatusPending, stored.Status())
}

func TestPaintingRepository_SaveRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewPaintingRepository()
	p, err := entities.NewPainting(valueobjects.NewTitleID(), valueobjects.NewIdeaID())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))

	assert.True(t, pkgerrors.IsConflict(repo.Save(ctx, p)))
}

func TestPaintingRepository_ListByTitleNewestFirst(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewPaintingRepository()
	titleID := valueobjects.NewTitleID()
	var ids []valueobjects.PaintingID
	for i := 0; i < 3; i++ {
		p, err := entities.NewPainting(titleID, valueobjects.NewIdeaID())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, p))
		ids = append(ids, p.ID())
	}
	other, err := entities.NewPainting(valueobjects.NewTitleID(), valueobjects.NewIdeaID())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, other))

	// Act
	list, err := repo.ListByTitle(ctx, titleID)

	// Assert
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID())
	assert.Equal(t, ids[1], list[1].ID())
	assert.Equal(t, ids[0], list[2].ID())
}

func TestIdeaRepository_ListByTitleNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewIdeaRepository()
	titleID := valueobjects.NewTitleID()
	for _, s := range []string{"first", "second", "third"} {
		idea, err := entities.NewIdea(titleID, s, s+" prompt")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, idea))
	}

	list, err := repo.ListByTitle(ctx, titleID)

	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Summary())
	assert.Equal(t, "first", list[2].Summary())

	_, err = repo.GetByID(ctx, valueobjects.NewIdeaID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestReferenceRepository_ListForGeneration(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewReferenceRepository()
	titleID := valueobjects.NewTitleID()
	mustRef := func(user string, title valueobjects.TitleID, global bool) *entities.Reference {
		ref, err := entities.NewReference(user, title, "data", global, nil)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, ref))
		return ref
	}
	own := mustRef("u1", titleID, false)
	global := mustRef("u1", valueobjects.TitleID{}, true)
	mustRef("u2", valueobjects.TitleID{}, true)
	mustRef("u1", valueobjects.NewTitleID(), false)

	// Act
	refs, err := repo.ListForGeneration(ctx, titleID, "u1")
	many, manyErr := repo.GetMany(ctx, []valueobjects.ReferenceID{global.ID(), valueobjects.NewReferenceID()})

	// Assert
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, own.ID(), refs[0].ID())
	assert.Equal(t, global.ID(), refs[1].ID())
	require.NoError(t, manyErr)
	require.Len(t, many, 1)
	assert.Equal(t, global.ID(), many[0].ID())
}
