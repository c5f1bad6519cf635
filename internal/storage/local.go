package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores files below a directory on disk. "/uploads/models/a.stl" maps
// to "<dir>/uploads/models/a.stl".
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) resolve(filePath string) (string, error) {
	rel, err := relative(filePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.FromSlash(rel)), nil
}

func (l *Local) Write(_ context.Context, filePath string, r io.Reader) error {
	dest, err := l.resolve(filePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, filePath string) (io.ReadCloser, error) {
	src, err := l.resolve(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (l *Local) Exists(ctx context.Context, filePath string) (bool, error) {
	_, err := l.Size(ctx, filePath)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (l *Local) Size(_ context.Context, filePath string) (int64, error) {
	src, err := l.resolve(filePath)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return 0, ErrNotExist
	}
	return info.Size(), nil
}

func (l *Local) Delete(_ context.Context, filePath string) error {
	src, err := l.resolve(filePath)
	if err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
