// Package feed renders the archive into the JSON documents the front end
// consumes. Files are replaced atomically so a reader never sees a
// half-written document.
package feed

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"crimefeed/internal/archive"
	"crimefeed/internal/crime"
)

type Meta struct {
	GeneratedAt string   `json:"generatedAt"`
	RunID       string   `json:"runId"`
	Count       int      `json:"count"`
	Sources     []string `json:"sources"`
}

type Document struct {
	Meta  Meta           `json:"meta"`
	Items []crime.Record `json:"items"`
}

func sources(items []crime.Record) []string {
	set := make(map[string]bool)
	for _, r := range items {
		if r.SourcePrefix != "" {
			set[r.SourcePrefix] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func newDocument(runID string, now time.Time, items []crime.Record) Document {
	if items == nil {
		items = []crime.Record{}
	}
	return Document{
		Meta: Meta{
			GeneratedAt: now.UTC().Format(time.RFC3339),
			RunID:       runID,
			Count:       len(items),
			Sources:     sources(items),
		},
		Items: items,
	}
}

// Write emits feed.json plus the per-kind incidents.json and cases.json
// into dir.
func Write(dir, runID string, now time.Time, arc archive.Archive) error {
	incidents, cases := arc.Split()
	all := make([]crime.Record, 0, len(incidents)+len(cases))
	all = append(all, incidents...)
	all = append(all, cases...)

	files := map[string]Document{
		"feed.json":      newDocument(runID, now, all),
		"incidents.json": newDocument(runID, now, incidents),
		"cases.json":     newDocument(runID, now, cases),
	}
	for name, doc := range files {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := archive.WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}
