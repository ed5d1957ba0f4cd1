package store

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// Column filter keys accepted by SetColumnFilter.
const (
	FilterDueFrom  = "dueDateFrom"
	FilterDueTo    = "dueDateTo"
	FilterHoursMin = "hoursMin"
	FilterHoursMax = "hoursMax"
)

// Filters narrows the visible items. Text filters match substrings
// ignoring case; status and priority must match exactly. Items without a
// due date pass the date bounds, items without hours fail the hour bounds.
type Filters struct {
	Global     string   `json:"global,omitempty"`
	Project    string   `json:"project,omitempty"`
	Task       string   `json:"task,omitempty"`
	Status     string   `json:"status,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Owner      string   `json:"owner,omitempty"`
	OwnerEmail string   `json:"ownerEmail,omitempty"`
	DueFrom    string   `json:"dueDateFrom,omitempty"`
	DueTo      string   `json:"dueDateTo,omitempty"`
	HoursMin   *float64 `json:"hoursMin,omitempty"`
	HoursMax   *float64 `json:"hoursMax,omitempty"`
}

// SetGlobalFilter sets the term searched across the text columns.
func (s *Store) SetGlobalFilter(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Global = term
}

// SetColumnFilter sets one column filter. An empty value clears it, and
// so does an hours bound that is not a number.
func (s *Store) SetColumnFilter(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := &s.filters
	switch key {
	case models.FieldProject:
		f.Project = value
	case models.FieldTask:
		f.Task = value
	case models.FieldStatus:
		f.Status = value
	case models.FieldPriority:
		f.Priority = value
	case models.FieldOwner:
		f.Owner = value
	case models.FieldOwnerEmail:
		f.OwnerEmail = value
	case FilterDueFrom:
		f.DueFrom = value
	case FilterDueTo:
		f.DueTo = value
	case FilterHoursMin:
		f.HoursMin = parseBound(value)
	case FilterHoursMax:
		f.HoursMax = parseBound(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return nil
}

// ClearFilters removes every filter.
func (s *Store) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = Filters{}
}

// Filters returns the active filters.
func (s *Store) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func parseBound(value string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	return &v
}

// apply returns the items passing every filter, in their current order.
func (f Filters) apply(items []models.Item) []models.Item {
	// A Caser is stateful, so each pass gets its own.
	fold := cases.Fold()
	contains := func(value, term string) bool {
		return strings.Contains(fold.String(value), fold.String(term))
	}

	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if f.Global != "" {
			haystack := strings.Join([]string{
				it.Project, it.Task, it.Status, it.Priority, it.Owner, it.OwnerEmail,
			}, " ")
			if !contains(haystack, f.Global) {
				continue
			}
		}

		if f.Project != "" && !contains(it.Project, f.Project) {
			continue
		}
		if f.Task != "" && !contains(it.Task, f.Task) {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.Priority != "" && it.Priority != f.Priority {
			continue
		}
		if f.Owner != "" && !contains(it.Owner, f.Owner) {
			continue
		}
		if f.OwnerEmail != "" && !contains(it.OwnerEmail, f.OwnerEmail) {
			continue
		}

		if f.DueFrom != "" && it.DueDate != "" && it.DueDate < f.DueFrom {
			continue
		}
		if f.DueTo != "" && it.DueDate != "" && it.DueDate > f.DueTo {
			continue
		}

		if f.HoursMin != nil && (it.EstimatedHours == nil || *it.EstimatedHours < *f.HoursMin) {
			continue
		}
		if f.HoursMax != nil && (it.EstimatedHours == nil || *it.EstimatedHours > *f.HoursMax) {
			continue
		}

		out = append(out, it)
	}
	return out
}
