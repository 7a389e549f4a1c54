package orchestrator

import (
	"encoding/json"
	"strings"

	"decision-copilot/internal/models"
)

// RequiredTasksFromPlan extracts the required task list from a stored planner
// output. Output that cannot be read yields the full analysis catalog.
func RequiredTasksFromPlan(output json.RawMessage) []models.TaskName {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(output, &fields); err != nil {
		return fullCatalog()
	}
	return NormalizeRequiredTasks(fields["required_agents"])
}

// NormalizeRequiredTasks sanitizes the planner's required_agents value.
// Only a JSON list is accepted; non-string entries are dropped, strings are trimmed
// and kept when they name an analysis task, duplicates keep their first position.
// An empty result falls back to the full analysis catalog. It never fails.
func NormalizeRequiredTasks(raw json.RawMessage) []models.TaskName {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fullCatalog()
	}

	seen := make(map[models.TaskName]bool, len(models.AnalysisTasks))
	var normalized []models.TaskName
	for _, entry := range entries {
		var s string
		if err := json.Unmarshal(entry, &s); err != nil {
			continue
		}
		name := models.TaskName(strings.TrimSpace(s))
		if !models.IsAnalysisTask(name) || seen[name] {
			continue
		}
		seen[name] = true
		normalized = append(normalized, name)
	}

	if len(normalized) == 0 {
		return fullCatalog()
	}
	return normalized
}

func fullCatalog() []models.TaskName {
	return append([]models.TaskName{}, models.AnalysisTasks...)
}
