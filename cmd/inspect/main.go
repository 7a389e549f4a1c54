package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"decision-copilot/internal/app"
	"decision-copilot/internal/config"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Backend != config.BackendMongo {
		log.Fatalf("inspect reads persisted state, set STORE_BACKEND=mongo")
	}

	// Parse command line arguments
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/inspect/main.go <decisionID>")
		os.Exit(1)
	}
	decisionID := os.Args[1]

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := application.Decisions.GetStatusSnapshot(ctx, decisionID)
	if err != nil {
		log.Fatalf("Failed to load decision: %v", err)
	}

	fmt.Printf("=== Decision ===\n\n")
	fmt.Printf("ID: %s\n", snapshot.Decision.ID)
	fmt.Printf("Question: %s\n", snapshot.Decision.Question)
	fmt.Printf("Status: %s\n", snapshot.Decision.Status)
	fmt.Printf("Created: %s\n", snapshot.Decision.CreatedAt.Format(time.RFC3339))
	fmt.Println()

	if snapshot.LatestRun == nil {
		fmt.Println("No runs yet.")
		return
	}

	run := snapshot.LatestRun
	fmt.Println("=== Latest Run ===")
	fmt.Printf("ID: %s\n", run.ID)
	fmt.Printf("Mode: %s\n", run.Mode)
	fmt.Printf("Status: %s\n", run.Status)
	fmt.Printf("Required tasks: %v\n", run.RequiredTasks)
	if run.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", run.ErrorMessage)
	}
	fmt.Println()

	explanation, err := application.Decisions.Explain(ctx, decisionID)
	if err != nil {
		log.Fatalf("Failed to load task records: %v", err)
	}

	fmt.Println("=== Tasks ===")
	for i, task := range explanation.Tasks {
		latency := "-"
		if task.LatencyMs != nil {
			latency = fmt.Sprintf("%dms", *task.LatencyMs)
		}
		fmt.Printf("  [%d] %s: %s (model: %s, latency: %s)\n", i+1, task.TaskName, task.Status, task.Model, latency)
		if task.ErrorMessage != "" {
			fmt.Printf("      error: %s\n", task.ErrorMessage)
		}
		if len(task.Output) > 0 {
			var out bytes.Buffer
			if err := json.Indent(&out, task.Output, "      ", "  "); err != nil {
				fmt.Printf("      output: %s\n", task.Output)
			} else {
				fmt.Printf("      output: %s\n", out.String())
			}
		}
	}
	fmt.Println()

	if len(explanation.Tasks) == 0 {
		fmt.Println("WARNING: The run has no task records. The planner was never dispatched.")
	}
}
