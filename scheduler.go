package main

import (
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartFetchScheduler runs the pipeline on a cron schedule in the background.
// The schedule is a standard 5-field cron expression (minute hour day-of-month
// month day-of-week). Examples: "*/30 * * * *" (every half hour), "0 7 * * *"
// (daily 7am). An empty schedule disables scheduling and the caller runs once.
func StartFetchScheduler(schedule string, run func()) bool {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Scheduler disabled (fetch_schedule not set)")
		return false
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Fatalf("Invalid fetch_schedule '%s': %v", schedule, err)
	}
	log.Printf("Fetch scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next fetch at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)
			run()
		}
	}()
	return true
}
