// Package storage keeps uploaded model files on local disk or in an
// S3-compatible bucket. Files are addressed by the URL path stored on a print
// job, e.g. "/uploads/models/3_1700000000000_ab12cd34_benchy.stl".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Simplici0/filaprint/internal/config"
)

// ErrNotExist is returned when the addressed file is missing.
var ErrNotExist = errors.New("file does not exist")

// ErrInvalidPath is returned for paths outside the uploads tree.
var ErrInvalidPath = errors.New("invalid file path")

// Root is the URL prefix every stored file lives under.
const Root = "/uploads/"

type Storage interface {
	Write(ctx context.Context, filePath string, r io.Reader) error
	Open(ctx context.Context, filePath string) (io.ReadCloser, error)
	Exists(ctx context.Context, filePath string) (bool, error)
	Size(ctx context.Context, filePath string) (int64, error)
	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, filePath string) error
}

// New builds the backend selected in cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.StorageLocal:
		return NewLocal(cfg.Dir), nil
	case config.StorageS3:
		return NewS3(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("invalid storage backend %q", cfg.Backend)
}

// relative validates filePath and returns it without the leading slash,
// e.g. "uploads/models/x.stl".
func relative(filePath string) (string, error) {
	if filePath == "" || strings.ContainsRune(filePath, 0) {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(filePath, "/"))
	if !strings.HasPrefix(cleaned, Root) || cleaned != "/"+strings.TrimPrefix(filePath, "/") {
		return "", ErrInvalidPath
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
