// Package fetch retrieves raw records from the upstream public-safety feeds
// and normalizes them into the unified record shape. Source identity stops
// here: everything downstream sees only crime.Record.
package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"crimefeed/internal/crime"
)

const DefaultCitizenRIMSBase = "https://api.v1.citizenrims.com"

// toDateString is the JavaScript Date.toDateString() layout the API expects.
const toDateString = "Mon Jan 02 2006"

// TokenManager caches the citizen auth token, refreshing well before the
// 24h expiry the API advertises.
type TokenManager struct {
	base string
	http *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenManager(base string, hc *http.Client) *TokenManager {
	return &TokenManager{base: base, http: hc}
}

func (t *TokenManager) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Now().Before(t.expiresAt.Add(-time.Minute)) {
		return t.token, nil
	}

	req, err := http.NewRequest(http.MethodPost, t.base+"/api/v1/auth/citizen", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Length", "0")
	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth returned %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("parsing auth response: %w", err)
	}
	t.token = body.Token
	t.expiresAt = time.Now().Add(time.Hour)
	return t.token, nil
}

type MarkerGroup struct {
	GroupFieldName string `json:"groupFieldName"`
}

type AgencyConfig struct {
	AgencyID             int           `json:"agencyId"`
	PrimaryAgencyID      int           `json:"primaryAgencyId"`
	AgencySiteName       string        `json:"agencySiteName"`
	IncidentsEnabled     bool          `json:"incidentsEnabled"`
	CaseDataEnabled      bool          `json:"caseDataEnabled"`
	DefaultLatitude      float64       `json:"defaultLatitude"`
	DefaultLongitude     float64       `json:"defaultLongitude"`
	IncidentMarkerGroups []MarkerGroup `json:"incidentMarkerGroups"`
	CaseMarkerGroups     []MarkerGroup `json:"caseMarkerGroups"`
}

// Client talks to the CitizenRIMS API for a set of agency url prefixes.
type Client struct {
	base   string
	http   *http.Client
	tokens *TokenManager
	days   int

	mu      sync.Mutex
	configs map[string]AgencyConfig
}

func NewClient(base string, hc *http.Client, days int) *Client {
	if base == "" {
		base = DefaultCitizenRIMSBase
	}
	return &Client{
		base:    base,
		http:    hc,
		tokens:  NewTokenManager(base, hc),
		days:    days,
		configs: make(map[string]AgencyConfig),
	}
}

func (c *Client) apiGet(path string, params url.Values, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// AgencyConfigFor fetches and caches the per-prefix agency configuration.
func (c *Client) AgencyConfigFor(prefix string) (AgencyConfig, error) {
	c.mu.Lock()
	cached, ok := c.configs[prefix]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var cfg AgencyConfig
	err := c.apiGet("/api/v1/AgencyConfig/AgencyConfigGetByUrlPrefix",
		url.Values{"citizenRimsUrlPrefix": {prefix}}, &cfg)
	if err != nil {
		return AgencyConfig{}, fmt.Errorf("agency config for %s: %w", prefix, err)
	}
	if cfg.AgencySiteName == "" {
		cfg.AgencySiteName = prefix
	}
	if cfg.DefaultLatitude == 0 {
		cfg.DefaultLatitude = 37.5
	}
	if cfg.DefaultLongitude == 0 {
		cfg.DefaultLongitude = -122.2
	}

	c.mu.Lock()
	c.configs[prefix] = cfg
	c.mu.Unlock()
	return cfg, nil
}

func typeList(groups []MarkerGroup) string {
	var types string
	for i, g := range groups {
		if i > 0 {
			types += ","
		}
		types += g.GroupFieldName
	}
	return types
}

func (c *Client) feedParams(cfg AgencyConfig, groups []MarkerGroup) url.Values {
	end := time.Now()
	start := end.AddDate(0, 0, -c.days)
	return url.Values{
		"agencyId":        {strconv.Itoa(cfg.AgencyID)},
		"primaryAgencyId": {strconv.Itoa(cfg.PrimaryAgencyID)},
		"startDate":       {start.Format(toDateString)},
		"endDate":         {end.Format(toDateString)},
		"types":           {typeList(groups)},
		"circleLatitude":  {strconv.FormatFloat(cfg.DefaultLatitude, 'f', -1, 64)},
		"circleLongitude": {strconv.FormatFloat(cfg.DefaultLongitude, 'f', -1, 64)},
		"circleRadius":    {"50000"},
	}
}

// FetchAgency retrieves both feeds for one prefix. A failure on one feed is
// logged and does not block the other; an agency-config failure fails the
// whole prefix since neither feed can be queried without it.
func (c *Client) FetchAgency(prefix string) ([]crime.Record, error) {
	cfg, err := c.AgencyConfigFor(prefix)
	if err != nil {
		return nil, err
	}

	var records []crime.Record
	var feedErrs []error

	if cfg.IncidentsEnabled && len(cfg.IncidentMarkerGroups) > 0 {
		var items []map[string]any
		if err := c.apiGet("/api/v1/Incident", c.feedParams(cfg, cfg.IncidentMarkerGroups), &items); err != nil {
			log.Printf("fetch %s incidents failed: %v", prefix, err)
			feedErrs = append(feedErrs, fmt.Errorf("incidents: %w", err))
		} else {
			for _, item := range items {
				records = append(records, NormalizeIncident(prefix, cfg.AgencySiteName, item))
			}
		}
	}

	if cfg.CaseDataEnabled && len(cfg.CaseMarkerGroups) > 0 {
		var items []map[string]any
		if err := c.apiGet("/api/v1/Case", c.feedParams(cfg, cfg.CaseMarkerGroups), &items); err != nil {
			log.Printf("fetch %s cases failed: %v", prefix, err)
			feedErrs = append(feedErrs, fmt.Errorf("cases: %w", err))
		} else {
			for _, item := range items {
				records = append(records, NormalizeCase(prefix, cfg.AgencySiteName, item))
			}
		}
	}

	// Partial data is still data: return what we got alongside the error.
	if len(feedErrs) > 0 && len(records) == 0 {
		return nil, feedErrs[0]
	}
	return records, nil
}
