// Package store persists the append-only alert log, per-run history, and
// LLM classification reviews in sqlite. Rows are only ever inserted; the
// authoritative dedup state lives in the alerted-set file, not here.
package store

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crimefeed/internal/alert"
)

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS alert_log (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL,
		record_id      TEXT NOT NULL,
		subject        TEXT NOT NULL,
		street         TEXT DEFAULT '',
		city           TEXT DEFAULT '',
		agency         TEXT DEFAULT '',
		distance_miles REAL NOT NULL,
		outcome        TEXT NOT NULL,
		error          TEXT DEFAULT '',
		alerted_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_log_record ON alert_log(record_id);
	CREATE INDEX IF NOT EXISTS idx_alert_log_time ON alert_log(alerted_at);

	CREATE TABLE IF NOT EXISTS run_history (
		run_id        TEXT PRIMARY KEY,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME NOT NULL,
		fetched       INTEGER NOT NULL,
		archive_size  INTEGER NOT NULL,
		alerts_sent   INTEGER NOT NULL,
		alerts_failed INTEGER NOT NULL,
		fetch_errors  TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);

	CREATE TABLE IF NOT EXISTS classification_reviews (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		record_id   TEXT NOT NULL,
		crime_text  TEXT NOT NULL,
		suggestion  TEXT NOT NULL,
		model       TEXT DEFAULT '',
		reviewed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_record ON classification_reviews(record_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func AppendAlertLog(db *sql.DB, runID string, entries []alert.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO alert_log (run_id, record_id, subject, street, city, agency, distance_miles, outcome, error, alerted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(
			runID, e.RecordID, e.Subject, e.Street, e.City, e.Agency,
			e.DistanceMiles, e.Outcome, e.Error, e.Time,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func RecentAlerts(db *sql.DB, limit int) ([]alert.LogEntry, error) {
	rows, err := db.Query(
		`SELECT record_id, subject, street, city, agency, distance_miles, outcome, error, alerted_at
		 FROM alert_log ORDER BY alerted_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.LogEntry
	for rows.Next() {
		var e alert.LogEntry
		if err := rows.Scan(
			&e.RecordID, &e.Subject, &e.Street, &e.City, &e.Agency,
			&e.DistanceMiles, &e.Outcome, &e.Error, &e.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type RunRecord struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Fetched      int
	ArchiveSize  int
	AlertsSent   int
	AlertsFailed int
	FetchErrors  string
}

func InsertRun(db *sql.DB, r RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO run_history (run_id, started_at, finished_at, fetched, archive_size, alerts_sent, alerts_failed, fetch_errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt, r.FinishedAt, r.Fetched, r.ArchiveSize,
		r.AlertsSent, r.AlertsFailed, r.FetchErrors,
	)
	return err
}

func RecentRuns(db *sql.DB, limit int) ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT run_id, started_at, finished_at, fetched, archive_size, alerts_sent, alerts_failed, fetch_errors
		 FROM run_history ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Fetched, &r.ArchiveSize,
			&r.AlertsSent, &r.AlertsFailed, &r.FetchErrors,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type ClassificationReview struct {
	RecordID   string
	CrimeText  string
	Suggestion string
	Model      string
}

func InsertReviews(db *sql.DB, runID string, reviews []ClassificationReview) error {
	if len(reviews) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO classification_reviews (run_id, record_id, crime_text, suggestion, model)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reviews {
		if _, err := stmt.Exec(runID, r.RecordID, r.CrimeText, r.Suggestion, r.Model); err != nil {
			return err
		}
	}
	return tx.Commit()
}
