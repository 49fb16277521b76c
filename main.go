package main

import (
	"log"
	"net/http"
	"os"

	"crimefeed/internal/feedserver"
	"crimefeed/internal/geo"
	"crimefeed/internal/store"
)

func main() {
	cfg := LoadConfig()

	boundary, err := geo.NewPolygon(cfg.Boundary)
	if err != nil {
		log.Fatalf("invalid boundary: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	run := func() {
		if err := RunOnce(cfg, boundary, db); err != nil {
			log.Printf("Run failed: %v", err)
		}
	}

	log.Printf("Starting crimefeed for %s (%d boundary vertices)", cfg.BoundaryName, len(boundary.Vertices()))
	run()
	scheduled := StartFetchScheduler(cfg.FetchSchedule, run)

	if cfg.ServeAddr != "" {
		srv := feedserver.New(cfg.DataDir, db)
		log.Printf("Serving feed on %s", cfg.ServeAddr)
		log.Fatal(http.ListenAndServe(cfg.ServeAddr, srv.Router()))
	}
	if scheduled {
		select {}
	}
}
