package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/jhchen-tw/inbox-digest/internal/config"
	"github.com/jhchen-tw/inbox-digest/internal/extract"
	"github.com/jhchen-tw/inbox-digest/internal/fetcher"
	"github.com/jhchen-tw/inbox-digest/internal/illustrator"
	"github.com/jhchen-tw/inbox-digest/internal/render"
	"github.com/jhchen-tw/inbox-digest/internal/runner"
	"github.com/jhchen-tw/inbox-digest/internal/state"
	"github.com/jhchen-tw/inbox-digest/internal/summarizer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	flag.Parse()

	// A .env file is optional; deployments usually export the variables
	// directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: found .env but could not load it: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	r, err := buildRunner(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	// Single-run mode: run the pipeline once and exit
	if *once {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		log.Println("Running digest (once mode)...")
		if err := r.Run(ctx); err != nil {
			log.Fatalf("Pipeline failed: %v", err)
		}
		log.Println("Done")
		return
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run immediately on startup if configured
	if cfg.RunOnStart {
		log.Println("Running initial digest...")
		if err := r.Run(ctx); err != nil {
			log.Printf("Initial run failed: %v", err)
		}
	}

	// Set up cron scheduler
	c := cron.New()
	_, err = c.AddFunc(cfg.Schedule, func() {
		log.Println("Cron triggered, running digest...")
		if err := r.Run(ctx); err != nil {
			log.Printf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to set up cron schedule %q: %v", cfg.Schedule, err)
	}
	c.Start()
	log.Printf("Scheduled digest with cron expression: %s", cfg.Schedule)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	// Graceful shutdown
	cancel()
	c.Stop()

	log.Println("Shutdown complete")
}

func buildRunner(cfg *config.Config) (*runner.Runner, error) {
	f, err := fetcher.New(cfg)
	if err != nil {
		return nil, err
	}
	s, err := summarizer.New(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(cfg.Render.Title, cfg.Render.ThumbnailPlaceholders)
	if err != nil {
		return nil, err
	}

	ex := extract.NewExtractor(cfg.Extract.MaxChars, loc)
	il := illustrator.New(cfg)
	store := state.NewStore(cfg.Output.StatePath, cfg.RetentionDays)

	return runner.New(cfg, f, ex, s, il, store, renderer), nil
}
