package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"crimefeed/internal/archive"
)

// Set is the persisted collection of record ids that have ever been alerted.
// It only grows; nothing ever removes an id, which is what guarantees a
// record can alert at most once across all runs.
type Set struct {
	ids map[string]struct{}
}

func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// LoadSet reads the persisted set (a sorted JSON array of ids). A missing
// file is a first run; a corrupt file is a fatal configuration error.
func LoadSet(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alerted set: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse alerted set %s: %w", path, err)
	}
	s := NewSet()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s, nil
}

// Save persists the set atomically, sorted for stable diffs.
func (s *Set) Save(path string) error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal alerted set: %w", err)
	}
	return archive.WriteFileAtomic(path, data)
}

func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Set) Add(id string) {
	s.ids[id] = struct{}{}
}

func (s *Set) Len() int {
	return len(s.ids)
}
