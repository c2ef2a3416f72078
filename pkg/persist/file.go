// Package persist is the snapshot load/save collaborator for the authority:
// a JSON file on disk, written atomically, saved on a debounced cadence and
// reloaded when it changes out from under us.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valuegraph/engine/pkg/model"
)

// FatalError reports a snapshot that cannot be parsed or applied at all.
// It is never retried silently; callers surface it as a hard failure.
type FatalError struct {
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("unusable snapshot %s: %v", e.Path, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// FileStore persists snapshots to a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at the given path. The file does not
// have to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads and validates the snapshot. A missing file surfaces as the
// underlying fs.ErrNotExist, which callers treat as a fresh start; anything
// that exists but does not decode or validate is a FatalError.
func (f *FileStore) Load() (model.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, &FatalError{Path: f.path, Err: err}
	}
	if _, err := model.FromSnapshot(snap); err != nil {
		return model.Snapshot{}, &FatalError{Path: f.path, Err: err}
	}
	return snap, nil
}

// Save writes the snapshot atomically: marshal, write to a temp file in the
// same directory, rename over the target.
func (f *FileStore) Save(snap model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
