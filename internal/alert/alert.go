// Package alert decides which fresh records warrant a notification: the
// record must classify as alert-eligible, sit within its tier's radius of
// the boundary polygon, and never have been alerted before.
package alert

import (
	"time"

	"crimefeed/internal/classify"
	"crimefeed/internal/crime"
	"crimefeed/internal/geo"
)

const (
	QuarterMileM  = 402  // near tier: suspicious person / prowler / trespass
	ThreeMilesM   = 4828 // wide tier: property crimes
	MetersPerMile = 1609.34
)

type Candidate struct {
	Record         crime.Record
	Classification classify.Result
	DistanceMeters float64
	DistanceMiles  float64
}

// LogEntry is one row of the append-only alert log, one per dispatch attempt.
type LogEntry struct {
	Time          time.Time
	RecordID      string
	Subject       string
	Street        string
	City          string
	Agency        string
	DistanceMiles float64
	Outcome       string // "sent" or "failed"
	Error         string
}

// Dispatcher delivers one alert. Implementations live in internal/notify;
// the engine only folds their outcomes into the log.
type Dispatcher interface {
	Subject(c Candidate) string
	Dispatch(c Candidate) error
}

type Engine struct {
	boundary   geo.Polygon
	classifier *classify.Classifier
	now        func() time.Time
}

func NewEngine(boundary geo.Polygon, classifier *classify.Classifier) *Engine {
	return &Engine{boundary: boundary, classifier: classifier, now: time.Now}
}

// Evaluate walks the fresh batch and returns the candidates that newly
// qualify. Records without coordinates cannot be geofenced and are never
// candidates, whatever their classification says.
func (e *Engine) Evaluate(records []crime.Record, seen *Set) []Candidate {
	var out []Candidate
	for _, r := range records {
		if !r.HasCoords() {
			continue
		}
		res := e.classifier.Classify(r.TextFields())
		if !res.AlertEligible {
			continue
		}
		dist := e.boundary.DistanceMeters(geo.Point{Lat: *r.Latitude, Lng: *r.Longitude})
		radius := float64(ThreeMilesM)
		if res.AlertTier == classify.TierNear {
			radius = QuarterMileM
		}
		if dist > radius {
			continue
		}
		if seen.Contains(r.ID) {
			continue
		}
		out = append(out, Candidate{
			Record:         r,
			Classification: res,
			DistanceMeters: dist,
			DistanceMiles:  dist / MetersPerMile,
		})
	}
	return out
}

type DispatchReport struct {
	Sent    int
	Failed  int
	Entries []LogEntry
}

// Dispatch hands each candidate to the dispatcher, isolating failures: one
// failed send never blocks the remaining candidates. Every attempt marks the
// id in the set, sent or failed, so a transient dispatch failure cannot turn
// into a duplicate alert on the next run.
func (e *Engine) Dispatch(candidates []Candidate, d Dispatcher, seen *Set) DispatchReport {
	var rep DispatchReport
	for _, c := range candidates {
		entry := LogEntry{
			Time:          e.now(),
			RecordID:      c.Record.ID,
			Subject:       d.Subject(c),
			Street:        c.Record.Street,
			City:          c.Record.City,
			Agency:        c.Record.Agency,
			DistanceMiles: c.DistanceMiles,
		}
		if err := d.Dispatch(c); err != nil {
			entry.Outcome = "failed"
			entry.Error = err.Error()
			rep.Failed++
		} else {
			entry.Outcome = "sent"
			rep.Sent++
		}
		seen.Add(c.Record.ID)
		rep.Entries = append(rep.Entries, entry)
	}
	return rep
}
