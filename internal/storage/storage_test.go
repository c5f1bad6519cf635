package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/filaprint/internal/config"
)

func TestRelative(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/uploads/models/a.stl", want: "uploads/models/a.stl"},
		{in: "uploads/models/a.stl", want: "uploads/models/a.stl"},
		{in: "/uploads/../etc/passwd", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "/uploads/models/../../x", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := relative(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPath, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocal(dir)
	const p = "/uploads/models/1_1700000000000_abcd1234_cube.stl"

	exists, err := store.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write(ctx, p, strings.NewReader("solid cube\nendsolid cube\n")))

	_, err = os.Stat(filepath.Join(dir, "uploads", "models", "1_1700000000000_abcd1234_cube.stl"))
	require.NoError(t, err)

	size, err := store.Size(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(len("solid cube\nendsolid cube\n")), size)

	rc, err := store.Open(ctx, p)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "solid cube\nendsolid cube\n", string(body))

	require.NoError(t, store.Delete(ctx, p))
	require.NoError(t, store.Delete(ctx, p))

	_, err = store.Size(ctx, p)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocalRejectsTraversal(t *testing.T) {
	store := NewLocal(t.TempDir())
	err := store.Write(context.Background(), "/uploads/../../escape.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: config.StorageLocal, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}
