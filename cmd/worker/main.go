package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"decision-copilot/internal/app"
	"decision-copilot/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Backend != config.BackendMongo || cfg.Queue.Backend != config.BackendMongo {
		log.Fatalf("A standalone worker needs STORE_BACKEND=mongo and QUEUE_BACKEND=mongo")
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := application.StartSweeper(); err != nil {
		log.Fatalf("Failed to start queue sweeper: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Workers().Run(ctx); err != nil {
		log.Printf("ERROR: Task workers exited: %v", err)
	}
}
