package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// CLI state lives under <baseDir>/.strand. baseDir is the user's home
// directory in production; tests substitute a temp dir.
const (
	stateDirName  = ".strand"
	stateFileName = "current_session"
	lockSuffix    = ".lock"
)

// StateBaseDir returns the base directory for CLI state, the user's home.
func StateBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home, nil
}

// stateFilePath returns the current-session file path under baseDir,
// creating the state directory when missing.
func stateFilePath(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, stateDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return filepath.Join(dir, stateFileName), nil
}

// LoadCurrentSessionID reads the active session recorded by a previous
// run. A missing or empty state file means no current session and is not
// an error. Concurrent CLI processes coordinate through a sibling lock
// file.
func LoadCurrentSessionID(baseDir string) (*uuid.UUID, error) {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return nil, err
	}

	lock := flock.New(path + lockSuffix)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("state file holds an invalid session ID: %w", err)
	}
	return &id, nil
}

// SaveCurrentSessionID records the active session for subsequent runs.
// The write goes through a temp file and rename so readers never observe
// a partial ID.
func SaveCurrentSessionID(baseDir string, sessionID uuid.UUID) error {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return err
	}

	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), stateFileName+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.WriteString(sessionID.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// ClearCurrentSessionID forgets the active session. Clearing when no
// current session exists is not an error.
func ClearCurrentSessionID(baseDir string) error {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return err
	}

	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}
