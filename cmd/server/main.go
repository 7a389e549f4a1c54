package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"decision-copilot/internal/api"
	"decision-copilot/internal/app"
	"decision-copilot/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional in-process workers (required with memory backends)
	var workers sync.WaitGroup
	if cfg.Worker.Embedded {
		if err := application.StartSweeper(); err != nil {
			log.Fatalf("Failed to start queue sweeper: %v", err)
		}
		pool := application.Workers()
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := pool.Run(ctx); err != nil {
				log.Printf("ERROR: Task workers exited: %v", err)
			}
		}()
	} else {
		log.Printf("Embedded workers disabled, run cmd/worker to execute tasks")
	}

	// Initialize handlers
	handlers := api.NewHandlers(application.Decisions, application.Exports)

	// Setup routes
	router := api.SetupRoutes(handlers)

	// Start server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: Server shutdown: %v", err)
	}
	workers.Wait()
}
