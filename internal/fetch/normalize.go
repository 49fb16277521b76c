package fetch

import (
	"strings"

	"crimefeed/internal/crime"
)

func rawString(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func rawFloat(raw map[string]any, key string) *float64 {
	if v, ok := raw[key].(float64); ok {
		f := v
		return &f
	}
	return nil
}

// NormalizeIncident maps a raw dispatch record into the unified shape. The
// upstream payload is kept verbatim in Raw so the archive never loses fields
// we do not model.
func NormalizeIncident(prefix, agency string, raw map[string]any) crime.Record {
	num := rawString(raw, "incidentNumber")
	return crime.Record{
		ID:                  crime.DeriveID(crime.KindIncident, prefix, num),
		Kind:                crime.KindIncident,
		SourcePrefix:        prefix,
		Agency:              agency,
		Number:              num,
		Street:              rawString(raw, "street"),
		City:                rawString(raw, "city"),
		Status:              rawString(raw, "status"),
		Date:                rawString(raw, "incidentDate"),
		Time:                rawString(raw, "incidentTime"),
		Latitude:            rawFloat(raw, "yCoord"),
		Longitude:           rawFloat(raw, "xCoord"),
		CallType:            rawString(raw, "callType"),
		CallTypeDescription: rawString(raw, "callTypeDescription"),
		Raw:                 raw,
	}
}

// NormalizeCase maps a raw case record. Cases carry offense fields instead of
// call-type fields, and report dates fall back to the first occurrence date.
func NormalizeCase(prefix, agency string, raw map[string]any) crime.Record {
	num := rawString(raw, "caseNumber")
	date := rawString(raw, "reportDate")
	if date == "" {
		date = rawString(raw, "occurrence1Date")
	}
	return crime.Record{
		ID:                  crime.DeriveID(crime.KindCase, prefix, num),
		Kind:                crime.KindCase,
		SourcePrefix:        prefix,
		Agency:              agency,
		Number:              num,
		Street:              rawString(raw, "street"),
		City:                rawString(raw, "city"),
		Status:              rawString(raw, "status"),
		Date:                date,
		Time:                rawString(raw, "reportTime"),
		Latitude:            rawFloat(raw, "yCoord"),
		Longitude:           rawFloat(raw, "xCoord"),
		CrimeType:           rawString(raw, "crimeType"),
		CrimeClassification: rawString(raw, "crimeClassification"),
		OffenseDescription:  rawString(raw, "offenseDescription1"),
		Raw:                 raw,
	}
}
