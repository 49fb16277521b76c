package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"crimefeed/internal/alert"
	"crimefeed/internal/archive"
	"crimefeed/internal/crime"
	"crimefeed/internal/geo"
	"crimefeed/internal/notify"
	"crimefeed/internal/store"
)

func TestRunOnceNoSources(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DataDir:      dir,
		BoundaryName: "Menlo Oaks",
		Boundary:     menloOaksBoundary,
	}
	boundary, err := geo.NewPolygon(cfg.Boundary)
	if err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(dir, "crimefeed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Seed history an empty fetch must not erase.
	seeded := crime.Record{
		ID:   "inc-atherton-OLD",
		Kind: crime.KindIncident,
	}
	if err := archive.Save(filepath.Join(dir, archiveFile), archive.Archive{seeded.ID: seeded}); err != nil {
		t.Fatal(err)
	}

	if err := RunOnce(cfg, boundary, db); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	arc, err := archive.Load(filepath.Join(dir, archiveFile))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := arc["inc-atherton-OLD"]; !ok {
		t.Error("run with no sources dropped archived history")
	}

	data, err := os.ReadFile(filepath.Join(dir, "feed.json"))
	if err != nil {
		t.Fatalf("feed.json not written: %v", err)
	}
	var doc struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Meta.Count != 1 {
		t.Errorf("feed count = %d, want the archived record", doc.Meta.Count)
	}

	runs, err := store.RecentRuns(db, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Fetched != 0 || runs[0].ArchiveSize != 1 {
		t.Errorf("run history = %+v", runs)
	}
}

func TestRunSummary(t *testing.T) {
	tests := []struct {
		name      string
		fetched   int
		archived  int
		rep       alert.DispatchReport
		fetchErrs []string
		want      string
	}{
		{
			name: "quiet run", fetched: 12, archived: 340,
			want: "Fetch complete: 12 records fetched, archive at 340",
		},
		{
			name: "alerts sent", fetched: 12, archived: 340,
			rep:  alert.DispatchReport{Sent: 2},
			want: "Fetch complete: 12 records fetched, archive at 340, 2 alerts sent",
		},
		{
			name: "alerts with failures", fetched: 12, archived: 340,
			rep:  alert.DispatchReport{Sent: 1, Failed: 1},
			want: "Fetch complete: 12 records fetched, archive at 340, 1 alerts sent (1 failed)",
		},
		{
			name: "degraded fetch", fetched: 0, archived: 340,
			fetchErrs: []string{"atherton: API returned 502"},
			want:      "Fetch complete: 0 records fetched, archive at 340\nWarnings:\natherton: API returned 502",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runSummary(tt.fetched, tt.archived, tt.rep, tt.fetchErrs); got != tt.want {
				t.Errorf("runSummary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDispatcher(t *testing.T) {
	if d := buildDispatcher(Config{}); d != nil {
		t.Error("no channels configured should yield nil dispatcher")
	}

	d := buildDispatcher(Config{
		BoundaryName:    "Menlo Oaks",
		SMTPHost:        "smtp.example.com",
		SMTPUser:        "u",
		SMTPPassword:    "p",
		AlertFrom:       "feed@example.com",
		AlertRecipients: []string{"a@example.com"},
		SlackBotToken:   "xoxb-test",
		SlackChannelID:  "C123",
	})
	multi, ok := d.(*notify.Multi)
	if !ok {
		t.Fatalf("dispatcher type = %T", d)
	}
	if len(multi.Channels) != 2 {
		t.Errorf("got %d channels, want mailer and slack", len(multi.Channels))
	}
}
