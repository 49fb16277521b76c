package feed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crimefeed/internal/archive"
	"crimefeed/internal/crime"
)

func record(kind crime.Kind, prefix, number string) crime.Record {
	return crime.Record{
		ID:           crime.DeriveID(kind, prefix, number),
		Kind:         kind,
		SourcePrefix: prefix,
		Number:       number,
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	arc := archive.Archive{}
	for _, r := range []crime.Record{
		record(crime.KindIncident, "atherton", "1"),
		record(crime.KindIncident, "paloalto", "2"),
		record(crime.KindCase, "atherton", "3"),
	} {
		arc[r.ID] = r
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := Write(dir, "run-1", now, arc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	read := func(name string) Document {
		t.Helper()
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("parsing %s: %v", name, err)
		}
		return doc
	}

	all := read("feed.json")
	if all.Meta.Count != 3 || len(all.Items) != 3 {
		t.Errorf("feed.json count = %d, items = %d", all.Meta.Count, len(all.Items))
	}
	if all.Meta.RunID != "run-1" {
		t.Errorf("runId = %q", all.Meta.RunID)
	}
	if all.Meta.GeneratedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("generatedAt = %q", all.Meta.GeneratedAt)
	}
	if len(all.Meta.Sources) != 2 || all.Meta.Sources[0] != "atherton" || all.Meta.Sources[1] != "paloalto" {
		t.Errorf("sources = %v", all.Meta.Sources)
	}

	if doc := read("incidents.json"); doc.Meta.Count != 2 {
		t.Errorf("incidents.json count = %d", doc.Meta.Count)
	}
	if doc := read("cases.json"); doc.Meta.Count != 1 {
		t.Errorf("cases.json count = %d", doc.Meta.Count)
	}
}

func TestWriteEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "run-1", time.Now(), archive.Archive{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "feed.json"))
	if err != nil {
		t.Fatalf("reading feed.json: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if doc.Items == nil {
		t.Error("items should encode as an empty array, not null")
	}
}
