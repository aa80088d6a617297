package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveGetOpen(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "datasets"))
	require.NoError(t, err)

	e, err := s.Save("uploads/sales.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", e.Name)
	assert.Equal(t, int64(8), e.Size)

	got, err := s.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.True(t, e.SavedAt.Equal(got.SavedAt))

	f, _, err := s.Open(e.ID)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(b))

	ds, _, err := s.Load(e.ID, dataset.ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", ds.Name())
	assert.Equal(t, 1, ds.Rows())
}

func TestGetErrors(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = s.Get("4b5f5a5e-8d1c-4c1e-9a49-7d0a3b2f9e11")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadParseFailure(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	e, err := s.Save("bad.csv", []byte("a\n1,2\n"))
	require.NoError(t, err)
	_, _, err = s.Load(e.ID, dataset.ParseOptions{})
	assert.ErrorIs(t, err, dataset.ErrParse)
}

func TestListNewestFirstAndDelete(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	first, err := s.Save("one.csv", []byte("x\n1\n"))
	require.NoError(t, err)
	second, err := s.Save("two.csv", []byte("x\n2\n"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.json"), []byte("{}"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	require.NoError(t, s.Delete(first.ID))
	_, err = s.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err = s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveMetadataFailureLeavesNothing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	s.marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }

	_, err = s.Save("sales.csv", []byte("a\n1\n"))
	require.Error(t, err)
	files, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, files)
}
