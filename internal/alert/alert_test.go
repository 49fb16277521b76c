package alert

import (
	"errors"
	"path/filepath"
	"testing"

	"crimefeed/internal/classify"
	"crimefeed/internal/crime"
	"crimefeed/internal/geo"
)

func testBoundary(t *testing.T) geo.Polygon {
	t.Helper()
	p, err := geo.NewPolygon([]geo.Point{
		{Lat: 37.4717, Lng: -122.1680},
		{Lat: 37.4698, Lng: -122.1618},
		{Lat: 37.4644, Lng: -122.1628},
		{Lat: 37.4627, Lng: -122.1698},
		{Lat: 37.4611, Lng: -122.1732},
		{Lat: 37.4686, Lng: -122.1753},
	})
	if err != nil {
		t.Fatalf("NewPolygon: %v", err)
	}
	return p
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(testBoundary(t), classify.NewDefault())
}

func f64(v float64) *float64 { return &v }

// makeRecord places a case-kind property crime at the given offset north of
// the boundary's top edge. 0.01 degrees of latitude is roughly 1.1km.
func recordAt(id string, latOffset float64, texts ...string) crime.Record {
	r := crime.Record{
		ID:        id,
		Kind:      crime.KindCase,
		Agency:    "Menlo Park Police Department",
		Street:    "100 TEST ST",
		City:      "Menlo Park",
		Latitude:  f64(37.4717 + latOffset),
		Longitude: f64(-122.1680),
	}
	r.OffenseDescription = "Burglary - Residential (F)"
	if len(texts) > 0 {
		r.Kind = crime.KindIncident
		r.OffenseDescription = ""
		r.CallType = texts[0]
	}
	return r
}

func TestEvaluateWideTier(t *testing.T) {
	e := testEngine(t)
	seen := NewSet()

	// ~1.1km out: inside the 3mi wide radius.
	cands := e.Evaluate([]crime.Record{recordAt("case-menlopark-1", 0.01)}, seen)
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	c := cands[0]
	if c.Classification.AlertTier != classify.TierWide {
		t.Errorf("tier = %v, want wide", c.Classification.AlertTier)
	}
	if c.DistanceMeters <= 0 || c.DistanceMeters > ThreeMilesM {
		t.Errorf("distance = %f, want within wide radius", c.DistanceMeters)
	}
	wantMiles := c.DistanceMeters / MetersPerMile
	if c.DistanceMiles != wantMiles {
		t.Errorf("DistanceMiles = %f, want %f", c.DistanceMiles, wantMiles)
	}

	// ~5.5km out: outside the wide radius.
	cands = e.Evaluate([]crime.Record{recordAt("case-menlopark-2", 0.05)}, seen)
	if len(cands) != 0 {
		t.Errorf("candidates = %d for record beyond 3mi, want 0", len(cands))
	}
}

func TestEvaluateNearTierIsTight(t *testing.T) {
	e := testEngine(t)
	seen := NewSet()

	// A prowler at ~500m: would qualify at 3mi, but the near tier caps at
	// 402m, so no candidate.
	far := recordAt("inc-menlopark-1", 0.0045, "Prowler")
	if cands := e.Evaluate([]crime.Record{far}, seen); len(cands) != 0 {
		t.Fatalf("prowler beyond 0.25mi produced %d candidates", len(cands))
	}

	// The same call at ~200m qualifies.
	near := recordAt("inc-menlopark-2", 0.0018, "Prowler")
	cands := e.Evaluate([]crime.Record{near}, seen)
	if len(cands) != 1 {
		t.Fatalf("prowler inside 0.25mi produced %d candidates, want 1", len(cands))
	}
	if cands[0].Classification.AlertTier != classify.TierNear {
		t.Errorf("tier = %v, want near", cands[0].Classification.AlertTier)
	}
}

func TestEvaluateInsideBoundaryIsDistanceZero(t *testing.T) {
	e := testEngine(t)
	r := recordAt("case-menlopark-1", 0)
	*r.Latitude = 37.4664
	*r.Longitude = -122.1685
	cands := e.Evaluate([]crime.Record{r}, NewSet())
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	if cands[0].DistanceMeters != 0 {
		t.Errorf("distance inside boundary = %f, want 0", cands[0].DistanceMeters)
	}
}

func TestEvaluateSkipsNullCoordinates(t *testing.T) {
	e := testEngine(t)
	r := recordAt("case-menlopark-1", 0)
	r.Latitude = nil
	r.Longitude = nil
	if cands := e.Evaluate([]crime.Record{r}, NewSet()); len(cands) != 0 {
		t.Errorf("record without coordinates produced %d candidates", len(cands))
	}
}

func TestEvaluateSkipsIneligible(t *testing.T) {
	e := testEngine(t)
	r := recordAt("inc-menlopark-1", 0.001, "Traffic Stop")
	if cands := e.Evaluate([]crime.Record{r}, NewSet()); len(cands) != 0 {
		t.Errorf("non-property record produced %d candidates", len(cands))
	}
}

func TestEvaluateDedupAcrossRuns(t *testing.T) {
	e := testEngine(t)
	seen := NewSet()
	r := recordAt("case-menlopark-1", 0.01)

	if cands := e.Evaluate([]crime.Record{r}, seen); len(cands) != 1 {
		t.Fatal("first run should produce a candidate")
	}
	seen.Add(r.ID)

	// Same id reappears next run with an updated status.
	r.Status = "Closed"
	if cands := e.Evaluate([]crime.Record{r}, seen); len(cands) != 0 {
		t.Error("already-alerted id produced a candidate again")
	}
}

type fakeDispatcher struct {
	failIDs map[string]bool
	sent    []string
}

func (f *fakeDispatcher) Subject(c Candidate) string {
	return "alert for " + c.Record.ID
}

func (f *fakeDispatcher) Dispatch(c Candidate) error {
	if f.failIDs[c.Record.ID] {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, c.Record.ID)
	return nil
}

func TestDispatchIsolatesFailures(t *testing.T) {
	e := testEngine(t)
	seen := NewSet()
	records := []crime.Record{
		recordAt("case-menlopark-1", 0.010),
		recordAt("case-menlopark-2", 0.011),
		recordAt("case-menlopark-3", 0.012),
	}
	cands := e.Evaluate(records, seen)
	if len(cands) != 3 {
		t.Fatalf("candidates = %d, want 3", len(cands))
	}

	d := &fakeDispatcher{failIDs: map[string]bool{"case-menlopark-2": true}}
	rep := e.Dispatch(cands, d, seen)

	if rep.Sent != 2 || rep.Failed != 1 {
		t.Errorf("sent=%d failed=%d, want 2/1", rep.Sent, rep.Failed)
	}
	if len(d.sent) != 2 {
		t.Errorf("dispatcher attempted %d sends after the failure, want 2", len(d.sent))
	}
	if len(rep.Entries) != 3 {
		t.Fatalf("log entries = %d, want one per attempt", len(rep.Entries))
	}
	for _, entry := range rep.Entries {
		failed := entry.RecordID == "case-menlopark-2"
		if failed && (entry.Outcome != "failed" || entry.Error == "") {
			t.Errorf("failed attempt logged as %+v", entry)
		}
		if !failed && (entry.Outcome != "sent" || entry.Error != "") {
			t.Errorf("sent attempt logged as %+v", entry)
		}
		if entry.Subject == "" || entry.Time.IsZero() {
			t.Errorf("incomplete log entry: %+v", entry)
		}
	}

	// Failed ids are marked too: retries on the next cycle would spam.
	for _, id := range []string{"case-menlopark-1", "case-menlopark-2", "case-menlopark-3"} {
		if !seen.Contains(id) {
			t.Errorf("id %s not marked after dispatch attempt", id)
		}
	}
}

func TestSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerted.json")

	s, err := LoadSet(path)
	if err != nil {
		t.Fatalf("LoadSet on missing file: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("first-run set size = %d, want 0", s.Len())
	}

	s.Add("inc-menlopark-1")
	s.Add("case-atherton-2")
	s.Add("inc-menlopark-1") // adding twice is a no-op
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	back, err := LoadSet(path)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	if back.Len() != 2 {
		t.Errorf("reloaded set size = %d, want 2", back.Len())
	}
	if !back.Contains("inc-menlopark-1") || !back.Contains("case-atherton-2") {
		t.Error("reloaded set lost ids")
	}
	if back.Contains("inc-menlopark-999") {
		t.Error("reloaded set contains an id that was never added")
	}
}
