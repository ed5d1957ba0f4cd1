package state

import (
	"sort"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	snapshots map[string]*models.Snapshot
	locks     *locker

	// Error injection
	SaveError error
}

// NewMockStore creates a mock state store.
func NewMockStore() *MockStore {
	return &MockStore{
		snapshots: make(map[string]*models.Snapshot),
		locks:     newLocker(),
	}
}

// Load returns a copy of the stored snapshot.
func (m *MockStore) Load(projectID string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[projectID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return cloneSnapshot(snap)
}

// Save stores a copy of the snapshot.
func (m *MockStore) Save(snapshot *models.Snapshot) error {
	if m.SaveError != nil {
		return m.SaveError
	}

	copied, err := cloneSnapshot(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ProjectID] = copied
	return nil
}

// Reset removes a snapshot.
func (m *MockStore) Reset(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snapshots, projectID)
	return nil
}

// List returns the stored project IDs, sorted.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Lock acquires a lock for a project.
func (m *MockStore) Lock(projectID string) (UnlockFunc, error) {
	return m.locks.lock(projectID)
}

// Migrate copies every snapshot into target.
func (m *MockStore) Migrate(target Store) error {
	ids, _ := m.List()
	for _, id := range ids {
		snap, err := m.Load(id)
		if err != nil {
			return err
		}
		if err := target.Save(snap); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

func cloneSnapshot(snap *models.Snapshot) (*models.Snapshot, error) {
	out := *snap
	out.Items = nil
	if snap.Items != nil {
		out.Items = make([]models.Item, 0, len(snap.Items))
		if err := copier.CopyWithOption(&out.Items, &snap.Items, copier.Option{DeepCopy: true}); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
