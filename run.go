package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"crimefeed/internal/alert"
	"crimefeed/internal/archive"
	"crimefeed/internal/classify"
	"crimefeed/internal/crime"
	"crimefeed/internal/feed"
	"crimefeed/internal/fetch"
	"crimefeed/internal/geo"
	"crimefeed/internal/metrics"
	"crimefeed/internal/notify"
	"crimefeed/internal/store"
)

const (
	archiveFile    = "archive.json"
	alertedFile    = "alerted.json"
	llmReviewLimit = 25
	llmTimeout     = 2 * time.Minute
)

// RunOnce executes one full pipeline pass: fetch every source, merge into
// the archive, regenerate the feed files, and dispatch alerts for records
// that newly qualify. Source failures degrade the run, they never abort it;
// a corrupt archive or alerted set aborts before anything is overwritten.
func RunOnce(cfg Config, boundary geo.Polygon, db *sql.DB) error {
	runID := ulid.Make().String()
	started := time.Now()
	log.Printf("run %s starting", runID)

	hc := &http.Client{Timeout: 30 * time.Second}
	var fresh []crime.Record
	var fetchErrs []string

	rims := fetch.NewClient(cfg.CitizenRIMSBase, hc, cfg.DaysBack)
	for _, prefix := range cfg.Agencies {
		records, err := rims.FetchAgency(prefix)
		if err != nil {
			log.Printf("run %s: fetch %s failed: %v", runID, prefix, err)
			metrics.FetchFailures.WithLabelValues(prefix).Inc()
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", prefix, err))
			continue
		}
		log.Printf("run %s: %s fetched=%d", runID, prefix, len(records))
		metrics.RecordsFetched.WithLabelValues(prefix).Add(float64(len(records)))
		fresh = append(fresh, records...)
	}

	if cfg.PaloAltoEnabled {
		records, err := fetch.NewPaloAltoClient(cfg.PaloAltoBase, hc).Fetch(cfg.DaysBack)
		if err != nil {
			log.Printf("run %s: fetch paloalto failed: %v", runID, err)
			metrics.FetchFailures.WithLabelValues("paloalto").Inc()
			fetchErrs = append(fetchErrs, fmt.Sprintf("paloalto: %v", err))
		} else {
			log.Printf("run %s: paloalto fetched=%d", runID, len(records))
			metrics.RecordsFetched.WithLabelValues("paloalto").Add(float64(len(records)))
			fresh = append(fresh, records...)
		}
	}

	archivePath := filepath.Join(cfg.DataDir, archiveFile)
	prior, err := archive.Load(archivePath)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return err
	}
	merged := archive.Merge(prior, fresh)
	if err := archive.Save(archivePath, merged); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("save archive: %w", err)
	}
	if err := feed.Write(cfg.DataDir, runID, time.Now(), merged); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("write feed: %w", err)
	}
	metrics.ArchiveSize.Set(float64(len(merged)))
	log.Printf("run %s: archive %d -> %d records", runID, len(prior), len(merged))

	alertedPath := filepath.Join(cfg.DataDir, alertedFile)
	seen, err := alert.LoadSet(alertedPath)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return err
	}

	classifier := classify.NewDefault()
	engine := alert.NewEngine(boundary, classifier)
	candidates := engine.Evaluate(fresh, seen)

	var rep alert.DispatchReport
	if dispatcher := buildDispatcher(cfg); dispatcher != nil {
		rep = engine.Dispatch(candidates, dispatcher, seen)
		if err := seen.Save(alertedPath); err != nil {
			metrics.RunsTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("save alerted set: %w", err)
		}
		metrics.AlertsDispatched.WithLabelValues("sent").Add(float64(rep.Sent))
		metrics.AlertsDispatched.WithLabelValues("failed").Add(float64(rep.Failed))
		if err := store.AppendAlertLog(db, runID, rep.Entries); err != nil {
			log.Printf("run %s: appending alert log: %v", runID, err)
		}
	} else if len(candidates) > 0 {
		// No channel configured: leave the set unmarked so these records
		// still alert once a channel exists.
		log.Printf("run %s: %d alert candidates, no dispatch channel configured", runID, len(candidates))
	}

	if cfg.AnthropicAPIKey != "" {
		reviewLowConfidence(cfg, db, runID, fresh, classifier)
	}

	if err := store.InsertRun(db, store.RunRecord{
		RunID:        runID,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Fetched:      len(fresh),
		ArchiveSize:  len(merged),
		AlertsSent:   rep.Sent,
		AlertsFailed: rep.Failed,
		FetchErrors:  strings.Join(fetchErrs, "; "),
	}); err != nil {
		log.Printf("run %s: recording run history: %v", runID, err)
	}

	if cfg.SlackChannelID != "" {
		notifier := notify.NewSlackNotifier(
			notify.Content{BoundaryName: cfg.BoundaryName, MapURL: cfg.MapURL},
			cfg.SlackBotToken, cfg.SlackChannelID,
		)
		if err := notifier.PostSummary(runSummary(len(fresh), len(merged), rep, fetchErrs)); err != nil {
			log.Printf("run %s: posting run summary: %v", runID, err)
		}
	}

	outcome := "ok"
	if len(fetchErrs) > 0 {
		outcome = "degraded"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	log.Printf("run %s complete in %s: fetched=%d archive=%d alerts sent=%d failed=%d",
		runID, time.Since(started).Round(time.Millisecond), len(fresh), len(merged), rep.Sent, rep.Failed)
	return nil
}

// runSummary is the one-line run outcome posted to the summary channel.
func runSummary(fetched, archived int, rep alert.DispatchReport, fetchErrs []string) string {
	msg := fmt.Sprintf("Fetch complete: %d records fetched, archive at %d", fetched, archived)
	if rep.Sent > 0 || rep.Failed > 0 {
		msg += fmt.Sprintf(", %d alerts sent", rep.Sent)
		if rep.Failed > 0 {
			msg += fmt.Sprintf(" (%d failed)", rep.Failed)
		}
	}
	if len(fetchErrs) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(fetchErrs, "\n"))
	}
	return msg
}

// buildDispatcher assembles the configured channels, or nil when none are.
func buildDispatcher(cfg Config) alert.Dispatcher {
	content := notify.Content{BoundaryName: cfg.BoundaryName, MapURL: cfg.MapURL}
	var channels []alert.Dispatcher
	if len(cfg.AlertRecipients) > 0 {
		channels = append(channels, &notify.Mailer{
			Content:    content,
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			User:       cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.AlertFrom,
			Recipients: cfg.AlertRecipients,
		})
	}
	if cfg.SlackChannelID != "" {
		channels = append(channels, notify.NewSlackNotifier(content, cfg.SlackBotToken, cfg.SlackChannelID))
	}
	if len(channels) == 0 {
		return nil
	}
	return &notify.Multi{Content: content, Channels: channels}
}

// reviewLowConfidence sends the records the rule cascade filed under "other"
// to the model for a second opinion. Suggestions are only persisted for later
// rule tuning; a review failure never affects the run.
func reviewLowConfidence(cfg Config, db *sql.DB, runID string, fresh []crime.Record, classifier *classify.Classifier) {
	var items []classify.ReviewItem
	for _, r := range fresh {
		text := r.CrimeText()
		if text == "" {
			continue
		}
		if classifier.Classify(r.TextFields()).Category != classify.CategoryOther {
			continue
		}
		items = append(items, classify.ReviewItem{ID: r.ID, Text: text})
		if len(items) == llmReviewLimit {
			break
		}
	}
	if len(items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), llmTimeout)
	defer cancel()
	suggestions, err := classify.NewReviewer(cfg.AnthropicAPIKey, cfg.LLMModel).Review(ctx, items)
	if err != nil {
		log.Printf("run %s: classification review failed: %v", runID, err)
		return
	}

	reviews := make([]store.ClassificationReview, 0, len(suggestions))
	for _, s := range suggestions {
		reviews = append(reviews, store.ClassificationReview{
			RecordID:   s.RecordID,
			CrimeText:  s.CrimeText,
			Suggestion: string(s.Category),
			Model:      s.Model,
		})
	}
	if err := store.InsertReviews(db, runID, reviews); err != nil {
		log.Printf("run %s: storing classification reviews: %v", runID, err)
		return
	}
	log.Printf("run %s: stored %d classification reviews", runID, len(reviews))
}
