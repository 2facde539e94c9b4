// Package local stores generated images on the local filesystem. The HTTP
// router serves the same directory under the public base path.
package local

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"atelier/application/ports"
)

// ImageStore writes image files into a single directory.
type ImageStore struct {
	dir        string
	publicBase string
	logger     *zap.Logger
}

// NewImageStore creates dir if needed. publicBase is the URL prefix the
// directory is served under, e.g. "/uploads".
func NewImageStore(dir, publicBase string, logger *zap.Logger) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if publicBase == "" {
		publicBase = "/uploads"
	}
	return &ImageStore{
		dir:        dir,
		publicBase: "/" + strings.Trim(publicBase, "/"),
		logger:     logger,
	}, nil
}

// Dir returns the directory images are written to.
func (s *ImageStore) Dir() string { return s.dir }

// Save writes data under name and returns its public path. The file appears
// atomically so a concurrent reader never sees a partial image.
func (s *ImageStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod image: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish image: %w", err)
	}

	s.logger.Debug("Image stored", zap.String("name", name), zap.Int("bytes", len(data)))
	return path.Join(s.publicBase, name), nil
}

var _ ports.ImageStore = (*ImageStore)(nil)
