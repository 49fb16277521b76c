package crime

import "strings"

type Kind string

const (
	KindIncident Kind = "incident"
	KindCase     Kind = "case"
)

// Record is the unified shape every upstream source is normalized into.
// The core pipeline never branches on which source a record came from;
// the Raw map preserves the source-specific fields verbatim for the
// front-end feed.
type Record struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	SourcePrefix string `json:"sourcePrefix"`
	Agency       string `json:"agency"`
	Number       string `json:"number"`

	Street string `json:"street"`
	City   string `json:"city"`
	Status string `json:"status"`
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`

	// Some sources omit geometry entirely; those records can never be
	// geofenced and are excluded from alerting.
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	CallType            string `json:"callType,omitempty"`
	CallTypeDescription string `json:"callTypeDescription,omitempty"`
	CrimeType           string `json:"crimeType,omitempty"`
	CrimeClassification string `json:"crimeClassification,omitempty"`
	OffenseDescription  string `json:"offenseDescription,omitempty"`

	Raw map[string]any `json:"raw,omitempty"`
}

// DeriveID builds the stable merge key. Incidents get the short "inc"
// prefix that the historical feed files already use.
func DeriveID(kind Kind, sourcePrefix, number string) string {
	k := "case"
	if kind == KindIncident {
		k = "inc"
	}
	return k + "-" + sourcePrefix + "-" + number
}

// TextFields returns the free-text attributes used for classification,
// in their fixed order.
func (r Record) TextFields() []string {
	return []string{
		r.CallType,
		r.CallTypeDescription,
		r.CrimeType,
		r.CrimeClassification,
		r.OffenseDescription,
	}
}

// CrimeText joins the non-empty text fields into one matching buffer.
func (r Record) CrimeText() string {
	var parts []string
	for _, f := range r.TextFields() {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

func (r Record) HasCoords() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Location is the display location used in alert subjects and bodies.
func (r Record) Location() string {
	street := r.Street
	if street == "" {
		street = "Unknown location"
	}
	if r.City == "" {
		return street
	}
	return street + ", " + r.City
}

// CrimeLabel picks the most descriptive single field for display,
// falling back per record kind the way the feed always has.
func (r Record) CrimeLabel() string {
	if r.Kind == KindIncident {
		if r.CallTypeDescription != "" {
			return r.CallTypeDescription
		}
		if r.CallType != "" {
			return r.CallType
		}
	} else {
		if r.OffenseDescription != "" {
			return r.OffenseDescription
		}
		if r.CrimeType != "" {
			return r.CrimeType
		}
	}
	return "Property Crime"
}
