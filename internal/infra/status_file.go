package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/presenced/internal/domain"
)

const statusFileName = "status.json"

// StatusFile implements domain.StatusRecorder with a JSON file in the data
// directory. Writes go through a temp file and rename, so readers never see
// a partial document.
type StatusFile struct {
	path string
}

// NewStatusFile returns a recorder for dataDir/status.json.
func NewStatusFile(dataDir string) *StatusFile {
	return &StatusFile{path: filepath.Join(dataDir, statusFileName)}
}

// Path returns the status file path.
func (f *StatusFile) Path() string {
	return f.path
}

// Write replaces the status document.
func (f *StatusFile) Write(status domain.PresenceStatus) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	// Serialize writers sharing the data directory.
	lock, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lock.Close()
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN) }()

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install status: %w", err)
	}
	return nil
}

// Read returns the last written status, or nil when none exists.
func (f *StatusFile) Read() (*domain.PresenceStatus, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	var status domain.PresenceStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status %s: %w", f.path, err)
	}
	return &status, nil
}

// Clear removes the status file. A missing file is not an error.
func (f *StatusFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove status: %w", err)
	}
	return nil
}

var _ domain.StatusRecorder = (*StatusFile)(nil)
