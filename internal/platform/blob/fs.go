// Package blob provides a filesystem implementation of the pipeline blob
// store, used in development and tests. Refs map to paths under a root
// directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/artivo/restyle-api/internal/pipeline"
)

// ErrInvalidRef is returned when a ref would escape the store root.
var ErrInvalidRef = errors.New("invalid blob ref")

// FSStore stores blobs as files under a root directory. The MIME type is
// derived from the ref's extension on download.
type FSStore struct {
	root   string
	logger *slog.Logger
}

// NewFSStore creates a filesystem blob store rooted at dir, creating the
// directory if needed.
func NewFSStore(dir string, logger *slog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", dir, err)
	}
	return &FSStore{
		root:   dir,
		logger: logger.With("component", "fs_blob_store"),
	}, nil
}

// Upload stores the image under ref, overwriting any previous content.
func (s *FSStore) Upload(ctx context.Context, ref string, img pipeline.Image) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", ref, err)
	}

	s.logger.DebugContext(ctx, "blob stored", "ref", ref, "bytes", len(img.Data))
	return nil
}

// Download retrieves the content stored under ref.
func (s *FSStore) Download(ctx context.Context, ref string) (pipeline.Image, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return pipeline.Image{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pipeline.Image{}, fmt.Errorf("%w: %s", pipeline.ErrAssetNotFound, ref)
		}
		return pipeline.Image{}, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}

	return pipeline.Image{Data: data, MIMEType: mimeTypeFor(ref)}, nil
}

// resolve maps a ref to a path under the root, rejecting traversal.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty ref", ErrInvalidRef)
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, clean), nil
}

// mimeTypeFor derives a MIME type from the ref's extension.
func mimeTypeFor(ref string) string {
	if t := mime.TypeByExtension(filepath.Ext(ref)); t != "" {
		return t
	}
	return "application/octet-stream"
}
