// Package feedserver serves the generated feed documents, run history, and
// Prometheus metrics over HTTP. It reads the JSON files the pipeline writes
// rather than holding its own copy, so a restart never loses state and the
// pipeline stays the single writer.
package feedserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crimefeed/internal/feed"
	"crimefeed/internal/metrics"
	"crimefeed/internal/store"
)

type Server struct {
	dir string
	db  *sql.DB
}

func New(dir string, db *sql.DB) *Server {
	return &Server{dir: dir, db: db}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/", s.document("feed.json"))
	r.Get("/incidents", s.document("incidents.json"))
	r.Get("/cases", s.document("cases.json"))
	r.Get("/agencies", s.agencies)
	r.Get("/runs", s.runs)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) load(name string) (feed.Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return feed.Document{}, err
	}
	var doc feed.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return feed.Document{}, err
	}
	return doc, nil
}

// document serves one feed file, optionally narrowed with ?agency=<prefix>.
func (s *Server) document(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.load(name)
		if os.IsNotExist(err) {
			http.Error(w, "feed not generated yet", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			http.Error(w, "reading feed", http.StatusInternalServerError)
			return
		}

		if prefix := r.URL.Query().Get("agency"); prefix != "" {
			filtered := doc.Items[:0:0]
			for _, item := range doc.Items {
				if item.SourcePrefix == prefix {
					filtered = append(filtered, item)
				}
			}
			doc.Items = filtered
			doc.Meta.Count = len(filtered)
			doc.Meta.Sources = []string{prefix}
		}
		writeJSON(w, doc)
	}
}

func (s *Server) agencies(w http.ResponseWriter, r *http.Request) {
	doc, err := s.load("feed.json")
	if os.IsNotExist(err) {
		writeJSON(w, []any{})
		return
	}
	if err != nil {
		http.Error(w, "reading feed", http.StatusInternalServerError)
		return
	}

	type agency struct {
		Prefix string `json:"prefix"`
		Name   string `json:"name"`
		Count  int    `json:"count"`
	}
	byPrefix := make(map[string]*agency)
	for _, item := range doc.Items {
		a, ok := byPrefix[item.SourcePrefix]
		if !ok {
			a = &agency{Prefix: item.SourcePrefix, Name: item.Agency}
			byPrefix[item.SourcePrefix] = a
		}
		a.Count++
	}
	out := make([]agency, 0, len(byPrefix))
	for _, a := range byPrefix {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	writeJSON(w, out)
}

type runResponse struct {
	RunID        string    `json:"runId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Fetched      int       `json:"fetched"`
	ArchiveSize  int       `json:"archiveSize"`
	AlertsSent   int       `json:"alertsSent"`
	AlertsFailed int       `json:"alertsFailed"`
	FetchErrors  string    `json:"fetchErrors,omitempty"`
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	records, err := store.RecentRuns(s.db, limit)
	if err != nil {
		http.Error(w, "reading run history", http.StatusInternalServerError)
		return
	}
	out := make([]runResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, runResponse{
			RunID:        rec.RunID,
			StartedAt:    rec.StartedAt,
			FinishedAt:   rec.FinishedAt,
			Fetched:      rec.Fetched,
			ArchiveSize:  rec.ArchiveSize,
			AlertsSent:   rec.AlertsSent,
			AlertsFailed: rec.AlertsFailed,
			FetchErrors:  rec.FetchErrors,
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}
