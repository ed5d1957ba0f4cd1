package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// JSONStore keeps one JSON file per project.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu    sync.RWMutex
	locks *locker
}

// NewJSONStore creates a JSON-based state store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
		locks:   newLocker(),
	}, nil
}

// Load reads a snapshot, falling back to the backup when the file is
// unreadable or fails its checksum.
func (s *JSONStore) Load(projectID string) (*models.Snapshot, error) {
	if err := validateID(projectID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.statePath(projectID)

	s.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"path":       path,
	}).Debug("Loading snapshot")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	snap, err := s.decode(data)
	if err != nil {
		s.logger.WithError(err).WithField("project_id", projectID).Warn("Snapshot file unusable")

		if backup, berr := s.loadBackup(projectID); berr == nil {
			s.logger.Warn("Loaded snapshot from backup due to corruption")
			return backup, nil
		}
		return nil, ErrStateCorrupt
	}

	return snap, nil
}

// Save writes a snapshot atomically, keeping the previous file as backup.
func (s *JSONStore) Save(snapshot *models.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}
	if err := validateID(snapshot.ProjectID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(snapshot.ProjectID)

	s.logger.WithFields(map[string]interface{}{
		"project_id": snapshot.ProjectID,
		"items":      snapshot.ItemCount(),
	}).Debug("Saving snapshot")

	wrapper := snapshotFile{
		Snapshot:      snapshot,
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}

	checksum, err := checksumOf(wrapper)
	if err != nil {
		return err
	}
	wrapper.Checksum = checksum

	jsonData, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmpPath := path + ".tmp"
	if err := writeSynced(tmpPath, jsonData); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot file: %w", err)
	}

	return nil
}

// Reset removes the snapshot and its backup.
func (s *JSONStore) Reset(projectID string) error {
	if err := validateID(projectID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("project_id", projectID).Info("Resetting snapshot")

	path := s.statePath(projectID)
	for _, p := range []string{path, path + ".backup"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// List returns all project IDs with a snapshot.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// Lock acquires a lock for a project.
func (s *JSONStore) Lock(projectID string) (UnlockFunc, error) {
	return s.locks.lock(projectID)
}

// Migrate copies every snapshot into target. Unreadable snapshots are
// skipped.
func (s *JSONStore) Migrate(target Store) error {
	ids, err := s.List()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	s.logger.WithField("count", len(ids)).Info("Migrating snapshots")

	for _, id := range ids {
		snap, err := s.Load(id)
		if err != nil {
			s.logger.WithError(err).WithField("project_id", id).Error("Failed to load snapshot")
			continue
		}

		if err := target.Save(snap); err != nil {
			return fmt.Errorf("save project %s: %w", id, err)
		}

		s.logger.WithField("project_id", id).Debug("Migrated snapshot")
	}

	return nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) statePath(projectID string) string {
	return filepath.Join(s.baseDir, projectID+".json")
}

func (s *JSONStore) decode(data []byte) (*models.Snapshot, error) {
	var wrapper snapshotFile
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if wrapper.Snapshot == nil {
		return nil, fmt.Errorf("missing snapshot body")
	}

	if wrapper.Checksum != "" {
		want := wrapper.Checksum
		wrapper.Checksum = ""
		got, err := checksumOf(wrapper)
		if err != nil {
			return nil, err
		}
		if got != want {
			s.logger.WithFields(map[string]interface{}{
				"expected": want,
				"actual":   got,
			}).Error("Snapshot checksum mismatch")
			return nil, fmt.Errorf("checksum mismatch")
		}
	}

	if wrapper.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", wrapper.SchemaVersion).Warn("Snapshot schema version mismatch")
	}

	return wrapper.Snapshot, nil
}

func (s *JSONStore) loadBackup(projectID string) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.statePath(projectID) + ".backup")
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

// checksumOf hashes the wrapper with an empty Checksum field.
func checksumOf(wrapper snapshotFile) (string, error) {
	wrapper.Checksum = ""
	data, err := json.Marshal(wrapper)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
