package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"decision-copilot/internal/models"
)

// ErrEmptyQuestion is returned when a decision is submitted without a question
var ErrEmptyQuestion = errors.New("question must not be empty")

// DefaultListLimit is used when ListDecisions is called without a positive limit
const DefaultListLimit = 20

// DecisionService handles the decision lifecycle operations exposed to clients
type DecisionService struct {
	store   Store
	starter RunStarter
}

// NewDecisionService creates a new decision service
func NewDecisionService(store Store, starter RunStarter) *DecisionService {
	return &DecisionService{store: store, starter: starter}
}

// CreateDecision stores a new decision in status new
func (s *DecisionService) CreateDecision(ctx context.Context, question, decisionContext, notifyEmail string) (*models.Decision, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	decision := &models.Decision{
		Question:    question,
		Context:     strings.TrimSpace(decisionContext),
		NotifyEmail: strings.TrimSpace(notifyEmail),
		Status:      models.DecisionStatusNew,
	}
	if err := s.store.CreateDecision(ctx, decision); err != nil {
		return nil, err
	}
	log.Printf("Created decision %s", decision.ID)
	return decision, nil
}

// StartRun creates a queued run for the decision and hands it to the orchestrator
func (s *DecisionService) StartRun(ctx context.Context, decisionID, mode string) (*models.Run, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	if mode = strings.TrimSpace(mode); mode == "" {
		mode = models.DefaultRunMode
	}
	run := &models.Run{
		DecisionID: decision.ID,
		Mode:       mode,
		Status:     models.RunStatusQueued,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := s.store.SetDecisionStatus(ctx, decision.ID, models.DecisionStatusRunning); err != nil {
		return nil, err
	}

	if err := s.starter.Start(ctx, run.ID); err != nil {
		// Nothing was dispatched, so no task event will ever settle the run
		if _, failErr := s.store.FailRun(ctx, run.ID, decision.ID, "Failed to dispatch planner: "+err.Error()); failErr != nil {
			log.Printf("ERROR: Failed to fail run %s after start error: %v", run.ID, failErr)
		}
		return nil, fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	log.Printf("Started run %s for decision %s (mode: %s)", run.ID, decision.ID, mode)

	// Return the state after start
	started, err := s.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return started, nil
}

// GetStatusSnapshot returns the decision, its latest run and that run's task records
func (s *DecisionService) GetStatusSnapshot(ctx context.Context, decisionID string) (*models.StatusSnapshot, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.StatusSnapshot{
		Decision: summarizeDecision(decision),
		Tasks:    []models.TaskSummary{},
	}

	run, tasks, err := s.latestRunTasks(ctx, decision.ID)
	if err != nil || run == nil {
		return snapshot, err
	}

	snapshot.LatestRun = &models.RunSummary{
		ID:            run.ID,
		Mode:          run.Mode,
		Status:        run.Status,
		RequiredTasks: run.RequiredTasks,
		ErrorMessage:  run.ErrorMessage,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
	for _, task := range tasks {
		snapshot.Tasks = append(snapshot.Tasks, models.NewTaskSummary(task))
	}
	return snapshot, nil
}

// GetReport returns the final report of a decision, if any
func (s *DecisionService) GetReport(ctx context.Context, decisionID string) (*models.ReportResponse, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return &models.ReportResponse{
		DecisionID:   decision.ID,
		Status:       decision.Status,
		FinalReport:  decision.FinalReport,
		ErrorMessage: decision.ErrorMessage,
	}, nil
}

// ListDecisions returns the newest decisions first
func (s *DecisionService) ListDecisions(ctx context.Context, status models.DecisionStatus, limit int) ([]models.DecisionSummary, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("invalid status filter: %q", status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	decisions, err := s.store.ListDecisions(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.DecisionSummary, 0, len(decisions))
	for i := range decisions {
		summaries = append(summaries, summarizeDecision(&decisions[i]))
	}
	return summaries, nil
}

// Explain returns every task of the latest run with its output or error
func (s *DecisionService) Explain(ctx context.Context, decisionID string) (*models.Explanation, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	explanation := &models.Explanation{
		Decision: summarizeDecision(decision),
		Tasks:    []models.TaskRecord{},
	}
	run, tasks, err := s.latestRunTasks(ctx, decision.ID)
	if err != nil || run == nil {
		return explanation, err
	}
	explanation.RunID = run.ID
	if tasks != nil {
		explanation.Tasks = tasks
	}
	return explanation, nil
}

// DeleteDecision removes a decision with all its runs and task records
func (s *DecisionService) DeleteDecision(ctx context.Context, decisionID string) error {
	if err := s.store.DeleteDecision(ctx, decisionID); err != nil {
		return err
	}
	log.Printf("Deleted decision %s", decisionID)
	return nil
}

// latestRunTasks returns a nil run when the decision has never been run
func (s *DecisionService) latestRunTasks(ctx context.Context, decisionID string) (*models.Run, []models.TaskRecord, error) {
	run, err := s.store.GetLatestRun(ctx, decisionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	tasks, err := s.store.ListTasks(ctx, run.ID, nil)
	if err != nil {
		return nil, nil, err
	}
	return run, tasks, nil
}

func summarizeDecision(d *models.Decision) models.DecisionSummary {
	return models.DecisionSummary{
		ID:        d.ID,
		Status:    d.Status,
		Question:  d.Question,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
