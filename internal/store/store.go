// Package store keeps the working copy of a project's items: filters,
// sorting, and edits pending a save.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrUnknownField = errors.New("unknown field")
)

// Renamer persists a task name. The tasks service implements it and
// encrypts the name when a master password is set.
type Renamer interface {
	RenameTask(ctx context.Context, taskID, plainName string) error
}

// Counts summarises the store for status lines.
type Counts struct {
	Total     int `json:"total"`
	Filtered  int `json:"filtered"`
	DirtyRows int `json:"dirty_rows"`
}

// Store holds the loaded items next to an untouched copy so edits can be
// tracked and reverted. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	original []models.Item
	items    []models.Item
	filters  Filters
	sort     []SortKey
	dirty    map[string]map[string]interface{} // id -> field -> new value

	logger *events.Logger
}

// New creates an empty store.
func New(logger *events.Logger) *Store {
	return &Store{
		dirty:  make(map[string]map[string]interface{}),
		logger: logger.WithField("component", "store"),
	}
}

// Load replaces the contents with items and resets sort and edits.
// Filters are kept.
func (s *Store) Load(items []models.Item) error {
	original, err := cloneItems(items)
	if err != nil {
		return err
	}
	working, err := cloneItems(items)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.original = original
	s.items = working
	s.sort = nil
	s.dirty = make(map[string]map[string]interface{})

	s.logger.WithField("items", len(items)).Debug("Store loaded")
	return nil
}

// Items returns a copy of every item in load order.
func (s *Store) Items() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, _ := cloneItems(s.items)
	return out
}

// Visible returns the filtered and sorted items.
func (s *Store) Visible() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.filters.apply(s.items)
	sortItems(visible, s.sort)

	out, _ := cloneItems(visible)
	return out
}

// Counts returns total, visible and edited row counts.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Counts{
		Total:     len(s.items),
		Filtered:  len(s.filters.apply(s.items)),
		DirtyRows: len(s.dirty),
	}
}

// UpdateField sets one field of an item and tracks whether it now differs
// from the loaded value. Estimated hours are cast to a number; anything
// that is not a finite number clears them.
func (s *Store) UpdateField(id, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.items, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	if err := setField(&s.items[idx], key, value); err != nil {
		return err
	}

	orig := indexOf(s.original, id)
	if orig < 0 {
		return nil
	}

	current := s.items[idx].Get(key)
	if equalValues(s.original[orig].Get(key), current) {
		if fields, ok := s.dirty[id]; ok {
			delete(fields, key)
			if len(fields) == 0 {
				delete(s.dirty, id)
			}
		}
		return nil
	}

	if s.dirty[id] == nil {
		s.dirty[id] = make(map[string]interface{})
	}
	s.dirty[id][key] = current
	return nil
}

// Revert discards every edit.
func (s *Store) Revert() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := cloneItems(s.original)
	if err != nil {
		return err
	}
	s.items = items
	s.dirty = make(map[string]map[string]interface{})
	return nil
}

// DirtyItems returns the edited items in load order.
func (s *Store) DirtyItems() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Item
	for _, it := range s.items {
		if _, ok := s.dirty[it.ID]; ok {
			out = append(out, it)
		}
	}
	cloned, _ := cloneItems(out)
	return cloned
}

// Changes returns the edited fields of an item.
func (s *Store) Changes(id string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := s.dirty[id]
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// MarkSaved makes the working items the new baseline.
func (s *Store) MarkSaved() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, err := cloneItems(s.items)
	if err != nil {
		return err
	}
	s.original = original
	s.dirty = make(map[string]map[string]interface{})
	return nil
}

// SaveChanges sends the name of every edited item to r. The subtask
// display prefix is stripped first. Items that saved become clean; the
// others stay dirty and their errors are returned joined.
func (s *Store) SaveChanges(ctx context.Context, r Renamer) (int, error) {
	pending := s.DirtyItems()

	var (
		saved []string
		errs  []error
	)
	for _, it := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		name := it.Task
		if it.IsSubtask {
			name = stripSubtaskPrefix(name)
		}

		if err := r.RenameTask(ctx, it.ID, name); err != nil {
			s.logger.WithError(err).WithField("task_id", it.ID).Warn("Failed to save item")
			errs = append(errs, err)
			continue
		}
		saved = append(saved, it.ID)
	}

	if err := s.markClean(saved); err != nil {
		errs = append(errs, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"saved":  len(saved),
		"failed": len(pending) - len(saved),
	}).Info("Saved changes")

	return len(saved), errors.Join(errs...)
}

// markClean copies the saved items into the baseline.
func (s *Store) markClean(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		idx := indexOf(s.items, id)
		orig := indexOf(s.original, id)
		if idx < 0 || orig < 0 {
			continue
		}
		var item models.Item
		if err := copier.CopyWithOption(&item, &s.items[idx], copier.Option{DeepCopy: true}); err != nil {
			return fmt.Errorf("copy item: %w", err)
		}
		s.original[orig] = item
		delete(s.dirty, id)
	}
	return nil
}

// stripSubtaskPrefix removes a leading ">>" marker and the spaces after it.
func stripSubtaskPrefix(name string) string {
	if !strings.HasPrefix(name, ">>") {
		return name
	}
	return strings.TrimLeft(strings.TrimPrefix(name, ">>"), " \t")
}

func cloneItems(items []models.Item) ([]models.Item, error) {
	if items == nil {
		return nil, nil
	}
	var out []models.Item
	if err := copier.CopyWithOption(&out, &items, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy items: %w", err)
	}
	return out, nil
}

func indexOf(items []models.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func setField(it *models.Item, key string, value interface{}) error {
	if key == models.FieldEstimatedHours {
		it.EstimatedHours = toHours(value)
		return nil
	}

	str := toString(value)
	switch key {
	case models.FieldProject:
		it.Project = str
	case models.FieldTask:
		it.Task = str
	case models.FieldDescription:
		it.Description = str
	case models.FieldStatus:
		it.Status = str
	case models.FieldPriority:
		it.Priority = str
	case models.FieldOwner:
		it.Owner = str
	case models.FieldOwnerEmail:
		it.OwnerEmail = str
	case models.FieldDueDate:
		it.DueDate = str
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return nil
}

func toHours(value interface{}) *float64 {
	var f float64
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case *float64:
		if v == nil {
			return nil
		}
		f = *v
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			f = 0
			break
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// equalValues compares numbers numerically and everything else as text,
// with nil equal to the empty string.
func equalValues(a, b interface{}) bool {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		return fa == fb
	}
	return toString(a) == toString(b)
}
