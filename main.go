package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"glownest/activity"
	"glownest/config"
	"glownest/logging"
	"glownest/models"
	"glownest/scheduler"
	"glownest/scraper"
	"glownest/server"
	"glownest/storage"
	"glownest/stream"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Start a scrape immediately on boot")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting glownest...")

	ctx := context.Background()

	var store storage.Store
	if cfg.DatabaseURL != "" {
		store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
	} else {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		log.Printf("SQLite database: %s", cfg.DBPath)
	}
	defer store.Close()

	if seed, err := cfg.LoadStreetSeed(); err != nil {
		log.Printf("Warning: street seed not loaded: %v", err)
	} else if len(seed) > 0 {
		n, err := store.SeedStreetMappings(ctx, seed)
		if err != nil {
			log.Printf("Warning: street seed failed: %v", err)
		} else if n > 0 {
			log.Printf("Seeded %d street mappings", n)
		}
	}

	activityLog := activity.New(store, cfg.Activity.CacheSize)
	if err := activityLog.Rehydrate(ctx); err != nil {
		log.Printf("Warning: activity rehydrate failed: %v", err)
	}

	hub := stream.NewHub()
	defer hub.Close()

	launcher := &scraper.ExecLauncher{Bin: cfg.Scraper.WorkerBin}
	controller := scraper.NewController(launcher, store, hub, activityLog)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, controller)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if *scrapeNow {
		if _, err := controller.Start(ctx, models.JobConfig{
			ListingType: cfg.Scraper.ListingType,
			MaxPages:    cfg.Scraper.MaxPages,
			DelayMS:     cfg.Scraper.DelayMS,
		}); err != nil {
			log.Printf("Boot scrape failed to start: %v", err)
		}
	}

	srv := server.New(cfg, controller, store, hub, activityLog)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(":" + cfg.HTTPPort)
	}()
	log.Printf("HTTP API listening on :%s", cfg.HTTPPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-sigCh:
		log.Println("Shutting down...")
		if _, err := controller.Stop(ctx); err != nil {
			log.Printf("Stop error: %v", err)
		}
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
	log.Println("Goodbye!")
}

// maskConnectionString masks the password in a connection string before it
// hits the logs.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
