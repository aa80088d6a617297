// Package store persists uploaded datasets on disk.
//
// Each upload is kept as <id>.raw next to a <id>.json metadata entry. Both
// are written atomically so readers never observe partial files.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/utils"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("dataset not found")
	ErrInvalidID = errors.New("invalid dataset id")
)

// Entry describes one stored dataset.
type Entry struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// Store keeps datasets under a single directory.
type Store struct {
	dir     string
	now     func() time.Time
	marshal func(any) ([]byte, error)
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory not set")
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now, marshal: utils.PrettyJSON}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) rawPath(id string) string  { return filepath.Join(s.dir, id+".raw") }
func (s *Store) metaPath(id string) string { return filepath.Join(s.dir, id+".json") }

// checkID rejects anything that is not a uuid, which also keeps ids out of path traversal.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save stores raw under a new id. The metadata is written last, so an entry
// is visible only once its data is complete.
func (s *Store) Save(name string, raw []byte) (*Entry, error) {
	e := &Entry{
		ID:      uuid.NewString(),
		Name:    filepath.Base(strings.TrimSpace(name)),
		Size:    int64(len(raw)),
		SavedAt: s.now().UTC(),
	}
	if e.Name == "." || e.Name == string(filepath.Separator) {
		e.Name = ""
	}
	if err := utils.SafeWriteFile(s.rawPath(e.ID), raw); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	data, err := s.marshal(e)
	if err != nil {
		_ = os.Remove(s.rawPath(e.ID))
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := utils.SafeWriteFile(s.metaPath(e.ID), data); err != nil {
		_ = os.Remove(s.rawPath(e.ID))
		return nil, fmt.Errorf("save metadata: %w", err)
	}
	return e, nil
}

// Get loads the metadata entry for id.
func (s *Store) Get(id string) (*Entry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", id, err)
	}
	return &e, nil
}

// Open returns the stored bytes for id. The caller closes the file.
func (s *Store) Open(id string) (*os.File, *Entry, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.rawPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	return f, e, nil
}

// Load opens and parses the dataset stored under id.
func (s *Store) Load(id string, opt dataset.ParseOptions) (*dataset.Dataset, *Entry, error) {
	f, e, err := s.Open(id)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	ds, err := dataset.Parse(e.Name, f, opt)
	if err != nil {
		return nil, e, err
	}
	return ds, e, nil
}

// List returns all entries, newest first. Unreadable entries are skipped.
func (s *Store) List() ([]*Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var out []*Entry
	for _, f := range files {
		id, ok := strings.CutSuffix(f.Name(), ".json")
		if f.IsDir() || !ok || checkID(id) != nil {
			continue
		}
		e, err := s.Get(id)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// Delete removes the entry and its data.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := os.Remove(s.rawPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove dataset: %w", err)
	}
	return nil
}
