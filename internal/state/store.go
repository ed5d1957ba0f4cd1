package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// Store persists the last fetched snapshot of each project. Items are kept
// as the API returned them, so encrypted fields stay encrypted at rest.
type Store interface {
	// Load retrieves the snapshot of a project.
	Load(projectID string) (*models.Snapshot, error)

	// Save persists a snapshot, replacing any previous one for the project.
	Save(snapshot *models.Snapshot) error

	// Reset removes the snapshot of a project.
	Reset(projectID string) error

	// List returns the IDs of all stored projects.
	List() ([]string, error)

	// Lock acquires an exclusive lock for a project.
	Lock(projectID string) (UnlockFunc, error)

	// Migrate copies every snapshot into target.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// UnlockFunc releases a project lock.
type UnlockFunc func()

// Errors
var (
	ErrStateNotFound = errors.New("snapshot not found")
	ErrStateLocked   = errors.New("snapshot is locked")
	ErrStateCorrupt  = errors.New("snapshot file is corrupt")
	ErrInvalidID     = errors.New("invalid project id")
)

// Backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

const lockTimeout = 5 * time.Second

// snapshotFile wraps a snapshot with store metadata.
type snapshotFile struct {
	*models.Snapshot

	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

// Info summarises a stored snapshot.
type Info struct {
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Items       int       `json:"items"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// New opens the backend selected in cfg.
func New(cfg *config.StorageConfig, logger *events.Logger) (Store, error) {
	switch cfg.StateBackend {
	case BackendJSON, "":
		return NewJSONStore(cfg.StateDir, logger)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.StateDir, "state.db"), logger)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// Summaries loads every snapshot in s and returns its summary. Snapshots
// that fail to load are skipped.
func Summaries(s Store) ([]Info, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(id)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			ProjectID:   snap.ProjectID,
			ProjectName: snap.ProjectName,
			Items:       snap.ItemCount(),
			FetchedAt:   snap.FetchedAt,
		})
	}
	return infos, nil
}

func validateID(projectID string) error {
	if projectID == "" || projectID == "." || projectID == ".." ||
		strings.ContainsAny(projectID, `/\`) || strings.ContainsRune(projectID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, projectID)
	}
	return nil
}

// locker hands out one mutex per project.
type locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocker() *locker {
	return &locker{locks: make(map[string]*sync.Mutex)}
}

// lock waits up to lockTimeout for the project mutex.
func (l *locker) lock(projectID string) (UnlockFunc, error) {
	l.mu.Lock()
	lock, exists := l.locks[projectID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[projectID] = lock
	}
	l.mu.Unlock()

	if lock.TryLock() {
		return lock.Unlock, nil
	}

	// Try to acquire lock with timeout
	done := make(chan struct{})
	go func() {
		lock.Lock()
		close(done)
	}()

	select {
	case <-done:
		return lock.Unlock, nil
	case <-time.After(lockTimeout):
		// Release the lock once the waiter finally gets it.
		go func() {
			<-done
			lock.Unlock()
		}()
		return nil, ErrStateLocked
	}
}
