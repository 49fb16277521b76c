package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crimefeed/internal/crime"
)

const (
	DefaultPaloAltoBase = "https://services8.arcgis.com/fLJ6cwGtxH7gc0Aq/arcgis/rest/services/PAPD_Public_CFS/FeatureServer/0/query"

	paloAltoPrefix = "paloalto"
	paloAltoAgency = "Palo Alto Police Department"
	paloAltoCity   = "Palo Alto"
)

// PaloAltoClient queries the Palo Alto open-data ArcGIS feature layer,
// which paginates via resultOffset and flags truncation with
// exceededTransferLimit.
type PaloAltoClient struct {
	base     string
	http     *http.Client
	pageSize int
}

func NewPaloAltoClient(base string, hc *http.Client) *PaloAltoClient {
	if base == "" {
		base = DefaultPaloAltoBase
	}
	return &PaloAltoClient{base: base, http: hc, pageSize: 1000}
}

type arcGISFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   struct {
		Rings [][][]float64 `json:"rings"`
	} `json:"geometry"`
}

type arcGISPage struct {
	Features              []arcGISFeature `json:"features"`
	ExceededTransferLimit bool            `json:"exceededTransferLimit"`
	Error                 *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *PaloAltoClient) fetchPage(where string, offset int) (arcGISPage, error) {
	params := url.Values{
		"where":             {where},
		"outFields":         {"*"},
		"f":                 {"json"},
		"returnGeometry":    {"true"},
		"outSR":             {"4326"},
		"resultRecordCount": {strconv.Itoa(c.pageSize)},
		"resultOffset":      {strconv.Itoa(offset)},
	}
	resp, err := c.http.Get(c.base + "?" + params.Encode())
	if err != nil {
		return arcGISPage{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return arcGISPage{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return arcGISPage{}, fmt.Errorf("feature query returned %d", resp.StatusCode)
	}
	var page arcGISPage
	if err := json.Unmarshal(body, &page); err != nil {
		return arcGISPage{}, fmt.Errorf("parsing feature page: %w", err)
	}
	// ArcGIS reports errors inside a 200 response.
	if page.Error != nil {
		return arcGISPage{}, fmt.Errorf("feature query failed: %s", page.Error.Message)
	}
	return page, nil
}

// Fetch pulls every call-for-service record newer than the cutoff, following
// pagination until the server stops flagging a transfer limit.
func (c *PaloAltoClient) Fetch(days int) ([]crime.Record, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	where := fmt.Sprintf("CALLTIME >= TIMESTAMP '%s'", cutoff.Format("2006-01-02 15:04:05"))

	var records []crime.Record
	offset := 0
	for {
		page, err := c.fetchPage(where, offset)
		if err != nil {
			return records, err
		}
		for _, f := range page.Features {
			records = append(records, normalizePaloAlto(f))
		}
		if !page.ExceededTransferLimit || len(page.Features) == 0 {
			break
		}
		// The server may cap pages below resultRecordCount; advance by what
		// actually arrived or short pages would skip records.
		offset += len(page.Features)
	}
	return records, nil
}

// ringCentroid averages the vertices of the first polygon ring. The layer
// publishes small block-level squares, so the mean is close enough to the
// true centroid for geofencing.
func ringCentroid(rings [][][]float64) (lat, lng *float64) {
	if len(rings) == 0 || len(rings[0]) == 0 {
		return nil, nil
	}
	var sumX, sumY float64
	for _, pt := range rings[0] {
		if len(pt) < 2 {
			return nil, nil
		}
		sumX += pt[0]
		sumY += pt[1]
	}
	n := float64(len(rings[0]))
	x, y := sumX/n, sumY/n
	return &y, &x
}

func normalizePaloAlto(f arcGISFeature) crime.Record {
	attrs := f.Attributes
	num := rawString(attrs, "INCIDENTNUMBER")
	if num == "" {
		if v, ok := attrs["OBJECTID"].(float64); ok {
			num = strconv.FormatInt(int64(v), 10)
		}
	}

	var date, clock string
	if millis, ok := attrs["CALLTIME"].(float64); ok {
		t := time.UnixMilli(int64(millis)).UTC()
		date = t.Format("2006-01-02T15:04:05Z")
		clock = t.Format("15:04:05")
	}

	lat, lng := ringCentroid(f.Geometry.Rings)
	return crime.Record{
		ID:                  crime.DeriveID(crime.KindIncident, paloAltoPrefix, num),
		Kind:                crime.KindIncident,
		SourcePrefix:        paloAltoPrefix,
		Agency:              paloAltoAgency,
		Number:              num,
		Street:              rawString(attrs, "CROSSSTREET"),
		City:                paloAltoCity,
		Status:              rawString(attrs, "INCIDENTSTATUS"),
		Date:                date,
		Time:                clock,
		Latitude:            lat,
		Longitude:           lng,
		CallType:            rawString(attrs, "CALLTYPE"),
		CallTypeDescription: rawString(attrs, "CALLTYPEDESCRIPTION"),
		Raw:                 attrs,
	}
}
