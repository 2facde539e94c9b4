package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/application/queries"
)

func paintings(statuses ...string) []queries.PaintingView {
	out := make([]queries.PaintingView, len(statuses))
	for i, s := range statuses {
		out[i] = queries.PaintingView{ID: string(rune('a' + i)), Status: s}
	}
	return out
}

func kinds(v View) (real, placeholders int) {
	for _, e := range v.Entries {
		if e.Kind == KindReal {
			real++
		} else {
			placeholders++
		}
	}
	return real, placeholders
}

func TestReconciler_PartialPollKeepsNewestPlaceholders(t *testing.T) {
	// Arrange
	rec, err := NewReconciler("title-1", NewMemoryStore())
	require.NoError(t, err)
	_, err = rec.Merge(nil)
	require.NoError(t, err)

	// Act
	submitted, err := rec.Submit(5)
	require.NoError(t, err)
	merged, err := rec.Merge(paintings("pending", "generating_image"))
	require.NoError(t, err)

	// Assert
	assert.Len(t, submitted.Entries, 5)
	assert.Len(t, merged.Entries, 5)
	assert.Equal(t, 5, merged.Expected)
	assert.False(t, merged.Done)
	r, p := kinds(merged)
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, p)
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{
		merged.Entries[2].Placeholder.Seq,
		merged.Entries[3].Placeholder.Seq,
		merged.Entries[4].Placeholder.Seq,
	}, "the two oldest placeholders were replaced")
}

func TestReconciler_ClearsWhenBatchSettles(t *testing.T) {
	tests := []struct {
		name     string
		polls    [][]queries.PaintingView
		wantDone bool
	}{
		{
			name: "count reached while still generating",
			polls: [][]queries.PaintingView{
				paintings("pending", "pending"),
				paintings("completed", "pending", "pending", "completed", "generating_image"),
			},
			wantDone: false,
		},
		{
			name: "count reached and all terminal",
			polls: [][]queries.PaintingView{
				paintings("pending", "pending"),
				paintings("completed", "failed", "completed", "completed", "safety_violation"),
			},
			wantDone: true,
		},
		{
			name: "every returned painting is terminal",
			polls: [][]queries.PaintingView{
				paintings("completed", "failed", "safety_violation"),
			},
			wantDone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			rec, err := NewReconciler("title-1", store)
			require.NoError(t, err)
			_, err = rec.Submit(5)
			require.NoError(t, err)

			var last View
			for _, poll := range tt.polls {
				last, err = rec.Merge(poll)
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantDone, last.Done)
			_, p := kinds(last)
			assert.Zero(t, p)
			assert.Equal(t, len(tt.polls[len(tt.polls)-1]), len(last.Entries))
			state, err := store.LoadBatch("title-1")
			require.NoError(t, err)
			assert.Empty(t, state.Placeholders)
		})
	}
}

func TestReconciler_LengthStaysWithinBounds(t *testing.T) {
	rec, err := NewReconciler("title-1", NewMemoryStore())
	require.NoError(t, err)
	_, err = rec.Submit(4)
	require.NoError(t, err)

	polls := [][]queries.PaintingView{
		nil,
		paintings("pending"),
		paintings("pending"),
		paintings("pending", "generating_image", "pending"),
	}
	for i, poll := range polls {
		view, err := rec.Merge(poll)
		require.NoError(t, err)
		_, p := kinds(view)
		assert.LessOrEqual(t, len(view.Entries), 4, "poll %d", i)
		assert.GreaterOrEqual(t, len(view.Entries), len(poll), "poll %d", i)
		assert.GreaterOrEqual(t, len(view.Entries), p, "poll %d", i)
		assert.Len(t, view.Entries, 4, "poll %d", i)
	}
}

func TestReconciler_ExistingPaintingsDoNotConsumePlaceholders(t *testing.T) {
	rec, err := NewReconciler("title-1", NewMemoryStore())
	require.NoError(t, err)
	_, err = rec.Merge(paintings("completed", "completed"))
	require.NoError(t, err)

	_, err = rec.Submit(3)
	require.NoError(t, err)
	view, err := rec.Merge(paintings("completed", "completed"))
	require.NoError(t, err)

	assert.False(t, view.Done)
	assert.Equal(t, 5, view.Expected)
	r, p := kinds(view)
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, p)

	view, err = rec.Merge(paintings("pending", "completed", "completed"))
	require.NoError(t, err)
	_, p = kinds(view)
	assert.Equal(t, 2, p)
}

func TestReconciler_RestoresPlaceholdersAfterRestart(t *testing.T) {
	// Arrange
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	first, err := NewReconciler("title-1", store)
	require.NoError(t, err)
	_, err = first.Submit(3)
	require.NoError(t, err)
	_, err = first.Merge(paintings("pending"))
	require.NoError(t, err)

	// Act
	second, err := NewReconciler("title-1", store)
	require.NoError(t, err)
	restored := second.View()

	// Assert
	require.Len(t, restored.Entries, 2)
	assert.Equal(t, uint64(1), restored.Entries[0].Placeholder.Seq)
	assert.Equal(t, uint64(2), restored.Entries[1].Placeholder.Seq)
	assert.Equal(t, 3, restored.Expected)

	view, err := second.Submit(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), view.Entries[len(view.Entries)-1].Placeholder.Seq, "sequence keeps counting")

	other, err := NewReconciler("title-2", store)
	require.NoError(t, err)
	assert.Empty(t, other.View().Entries)
}

func TestReconciler_CancelDropsNewest(t *testing.T) {
	rec, err := NewReconciler("title-1", NewMemoryStore())
	require.NoError(t, err)
	_, err = rec.Submit(2)
	require.NoError(t, err)
	_, err = rec.Submit(3)
	require.NoError(t, err)

	view, err := rec.Cancel(3)
	require.NoError(t, err)

	require.Len(t, view.Entries, 2)
	assert.Equal(t, uint64(0), view.Entries[0].Placeholder.Seq)
	assert.Equal(t, uint64(1), view.Entries[1].Placeholder.Seq)
	assert.Equal(t, 2, view.Expected)
}

func TestReconciler_SubmitRejectsZero(t *testing.T) {
	rec, err := NewReconciler("title-1", NewMemoryStore())
	require.NoError(t, err)

	_, err = rec.Submit(0)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestFileStore_LastTitle(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	last, err := store.LastTitle()
	require.NoError(t, err)
	assert.Empty(t, last)

	require.NoError(t, store.SetLastTitle("title-9"))
	require.NoError(t, store.SaveBatch("title-9", BatchState{NextSeq: 4, Expected: 1, Placeholders: []Placeholder{{Seq: 3}}}))

	reopened := NewFileStore(store.Path())
	last, err = reopened.LastTitle()
	require.NoError(t, err)
	assert.Equal(t, "title-9", last)
	state, err := reopened.LoadBatch("title-9")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), state.NextSeq)
	require.Len(t, state.Placeholders, 1)
}
