package store

import (
	"regexp"
	"sort"

	"golang.org/x/text/cases"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one column of a multi-column sort.
type SortKey struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SetSort cycles key through ascending, descending and off. Without multi
// the sort is reduced to key alone; with multi the other keys are kept and
// a new key is appended.
func (s *Store) SetSort(key string, multi bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := -1
	for i, k := range s.sort {
		if k.Key == key {
			existing = i
			break
		}
	}

	if !multi {
		var current Direction
		if existing >= 0 {
			current = s.sort[existing].Direction
		}
		s.sort = nil
		if next := cycle(current); next != "" {
			s.sort = []SortKey{{Key: key, Direction: next}}
		}
		return
	}

	if existing < 0 {
		s.sort = append(s.sort, SortKey{Key: key, Direction: Asc})
		return
	}

	if next := cycle(s.sort[existing].Direction); next != "" {
		s.sort[existing].Direction = next
	} else {
		s.sort = append(s.sort[:existing], s.sort[existing+1:]...)
	}
}

// Sort returns the active sort keys in priority order.
func (s *Store) Sort() []SortKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SortKey(nil), s.sort...)
}

func cycle(d Direction) Direction {
	switch d {
	case "":
		return Asc
	case Asc:
		return Desc
	default:
		return ""
	}
}

// sortItems orders items in place. Equal items keep their order.
func sortItems(items []models.Item, keys []SortKey) {
	if len(keys) == 0 {
		return
	}

	fold := cases.Fold()
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			res := compareValues(items[i].Get(k.Key), items[j].Get(k.Key), fold)
			if res == 0 {
				continue
			}
			if k.Direction == Desc {
				res = -res
			}
			return res < 0
		}
		return false
	})
}

// compareValues orders nil last, numbers numerically, ISO dates and other
// text by case-folded string.
func compareValues(a, b interface{}, fold cases.Caser) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	sa, sb := toString(a), toString(b)
	if !(datePattern.MatchString(sa) && datePattern.MatchString(sb)) {
		sa, sb = fold.String(sa), fold.String(sb)
	}
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
