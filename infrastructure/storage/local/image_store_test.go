package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestImageStore_Save(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	store, err := NewImageStore(dir, "uploads/", zap.NewNop())
	require.NoError(t, err)

	// Act
	url, err := store.Save(context.Background(), "abc.png", []byte("png-bytes"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc.png", url)
	data, err := os.ReadFile(filepath.Join(dir, "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestImageStore_RejectsUnsafeNames(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape.png", "nested/a.png", ".hidden"} {
		_, err := store.Save(context.Background(), name, []byte("x"))
		assert.Error(t, err, name)
	}
}

func TestImageStore_CancelledContext(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "/uploads", zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Save(ctx, "a.png", []byte("x"))

	assert.ErrorIs(t, err, context.Canceled)
}
