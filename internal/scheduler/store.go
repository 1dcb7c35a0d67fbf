package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// Store persists the full set of pending reminders between restarts.
// Save is called with a complete snapshot each time; implementations are
// free to diff internally but must not require one.
type Store interface {
	Load() ([]models.ReminderDetails, error)
	Save(events []models.ReminderDetails) error
}

const persistedVersion = 1

// persistedFile is the on-disk shape described in §6: a version tag plus
// a flat array of events. Unknown fields are tolerated on read (logged,
// not rejected); missing required fields are not.
type persistedFile struct {
	Version int                      `json:"version"`
	Events  []models.ReminderDetails `json:"events"`
}

// FileStore persists reminders to a single JSON file via write-to-temp
// plus atomic rename, matching the teacher's general write discipline for
// anything that must never be observed half-written.
type FileStore struct {
	path string
}

// NewFileStore returns a Store backed by the file at path. The file need
// not exist yet; Load returns an empty slice in that case.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and parses the persistence file. A missing file is not an
// error (fresh install); a malformed one is.
func (f *FileStore) Load() ([]models.ReminderDetails, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var parsed persistedFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}

	events := make([]models.ReminderDetails, 0, len(parsed.Events))
	for _, e := range parsed.Events {
		if e.ID == "" || e.FireAt.IsZero() {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Save writes the full reminder set, replacing whatever was there. The
// write goes to a sibling temp file first, then an atomic rename, so a
// crash mid-write never corrupts the persisted set.
func (f *FileStore) Save(events []models.ReminderDetails) error {
	if events == nil {
		events = []models.ReminderDetails{}
	}
	payload := persistedFile{Version: persistedVersion, Events: events}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reminders: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".reminders-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
