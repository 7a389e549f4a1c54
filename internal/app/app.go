package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"decision-copilot/internal/agents"
	"decision-copilot/internal/config"
	"decision-copilot/internal/database"
	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
	"decision-copilot/internal/orchestrator"
	"decision-copilot/internal/queue"
	"decision-copilot/internal/services"
)

// App holds the wired components shared by the server, worker and inspect commands
type App struct {
	Config       *config.Config
	Store        services.Store
	Queue        queue.Queue
	Orchestrator *orchestrator.Orchestrator
	Executor     *services.TaskExecutor
	Decisions    *services.DecisionService
	Exports      *services.ExportService

	mongoClient *database.MongoDBClient
	mongoQueue  *queue.MongoQueue
	memoryQueue *queue.MemoryQueue
}

// New builds the store, queue, orchestrator and services selected by cfg
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	// State store
	switch cfg.Store.Backend {
	case config.BackendMongo:
		log.Printf("Initializing MongoDB connection (Host: %s, Port: %s, Database: %s)",
			cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
		client, err := database.NewMongoDBClient(cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		a.mongoClient = client
		a.Store = client
	default:
		log.Printf("Using in-memory state store, decisions are lost on restart")
		a.Store = database.NewMemoryStore()
	}

	// Work queue
	switch cfg.Queue.Backend {
	case config.BackendMongo:
		if a.mongoClient == nil {
			return nil, fmt.Errorf("mongo queue requires the mongo state store")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q, err := queue.NewMongoQueue(ctx, a.mongoClient.Database(), cfg.Queue.Collection, cfg.Queue.LeaseDuration, cfg.Queue.PollInterval)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mongoQueue = q
		a.Queue = q
	default:
		a.memoryQueue = queue.NewMemoryQueue()
		a.Queue = a.memoryQueue
	}

	// Generation
	var client llm.Client
	if cfg.LLM.Mock {
		log.Printf("LLM_MOCK enabled, agents return canned output")
		client = llm.NewMockClient()
	} else {
		client = llm.NewOpenAIClient(cfg.LLM)
	}
	factory := func(name models.TaskName) (agents.Agent, error) {
		return agents.Build(name, client)
	}

	a.Orchestrator = orchestrator.New(a.Store, a.Queue)

	pdfService := services.NewPDFService()
	a.Exports = services.NewExportService(a.Store, pdfService)
	a.Decisions = services.NewDecisionService(a.Store, a.Orchestrator)

	var notifier services.CompletionNotifier
	if cfg.Email.Enabled() {
		notifier = services.NewReportMailer(a.Exports, pdfService, services.NewEmailService(cfg.Email))
	} else {
		log.Printf("SendGrid not configured, report emails disabled")
	}
	a.Executor = services.NewTaskExecutor(a.Store, a.Orchestrator, factory, notifier)

	return a, nil
}

// Workers returns a pool consuming the app's queue
func (a *App) Workers() *services.WorkerPool {
	return services.NewWorkerPool(a.Queue, a.Executor, a.Config.Worker.Concurrency)
}

// StartSweeper re-queues expired leases on the configured schedule.
// The memory queue has no leases, so it is a no-op there.
func (a *App) StartSweeper() error {
	if a.mongoQueue == nil {
		return nil
	}
	return a.mongoQueue.StartSweeper(a.Config.Queue.SweepSchedule)
}

// Close stops the sweeper and releases the queue and database connections
func (a *App) Close() {
	if a.mongoQueue != nil {
		a.mongoQueue.StopSweeper()
	}
	if a.memoryQueue != nil {
		a.memoryQueue.Close()
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Close(); err != nil {
			log.Printf("WARNING: Failed to close MongoDB connection: %v", err)
		}
	}
}
