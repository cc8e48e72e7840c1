package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bowerhall/lantern/internal/logger"
)

// FilePersister keeps the snapshot as a single JSON document. Writes go to a
// temp file in the same directory and are renamed over the target.
type FilePersister struct {
	path     string
	readOnly bool
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// NewReadOnlyFilePersister loads without side effects: a corrupt file is
// reported but left in place, and Save fails with ErrReadOnly.
func NewReadOnlyFilePersister(path string) *FilePersister {
	return &FilePersister{path: path, readOnly: true}
}

// Load reads the snapshot. A missing file is an empty store. An undecodable
// file is moved aside to <path>.corrupt and reported as ErrStoreCorrupt.
func (f *FilePersister) Load() (Sessions, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(Sessions), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	var sessions Sessions
	if err := json.Unmarshal(data, &sessions); err != nil {
		if !f.readOnly {
			quarantine(f.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	if sessions == nil {
		sessions = make(Sessions)
	}

	return sessions, nil
}

// quarantine moves a corrupt store file to <path>.corrupt so the next write
// does not overwrite it.
func quarantine(path string) error {
	dest := path + ".corrupt"
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("could not move corrupt store aside", "path", path, "error", err)
		return err
	}
	logger.Warn("corrupt store moved aside", "path", dest)
	return nil
}

func (f *FilePersister) Save(sessions Sessions) error {
	if f.readOnly {
		return ErrReadOnly
	}

	data, err := encodeSessions(sessions)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist snapshot: %w", err)
	}

	return nil
}

func (f *FilePersister) Close() error {
	return nil
}
