// Package archive holds the full historical record set, keyed by stable id.
// Each upstream fetch only covers a recent window, so the archive is the
// right-biased union of everything ever seen: fresh data overwrites the same
// id, history outside the window is retained unchanged. It never shrinks.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"crimefeed/internal/crime"
)

type Archive map[string]crime.Record

// Merge returns prior ∪ fresh, preferring fresh on id conflicts (status and
// dispositions change as cases progress). Neither input is modified.
func Merge(prior Archive, fresh []crime.Record) Archive {
	merged := make(Archive, len(prior)+len(fresh))
	for id, r := range prior {
		merged[id] = r
	}
	for _, r := range fresh {
		merged[r.ID] = r
	}
	return merged
}

// Split derives the incidents-only and cases-only views, each sorted by id
// so repeated runs produce byte-identical output files.
func (a Archive) Split() (incidents, cases []crime.Record) {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := a[id]
		if r.Kind == crime.KindIncident {
			incidents = append(incidents, r)
		} else {
			cases = append(cases, r)
		}
	}
	return incidents, cases
}

// Load reads the persisted archive. A missing file is a first run and yields
// an empty archive; a file that exists but cannot be parsed is fatal for the
// caller, never silently replaced.
func Load(path string) (Archive, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Archive{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", path, err)
	}
	if a == nil {
		a = Archive{}
	}
	return a, nil
}

// Save persists the archive atomically.
func Save(path string, a Archive) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes to a temporary file in the target directory and
// renames it over the destination, so a crash mid-write leaves the previous
// good copy readable.
func WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
