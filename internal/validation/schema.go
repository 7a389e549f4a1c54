package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"decision-copilot/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var (
	schemasOnce sync.Once
	schemas     map[models.TaskName]*gojsonschema.Schema
	schemasErr  error
)

func schemaFile(task models.TaskName) string {
	switch {
	case task == models.TaskPlanner:
		return "schemas/planner.json"
	case task == models.TaskSynth:
		return "schemas/synth.json"
	default:
		return "schemas/items.json"
	}
}

// LoadSchema compiles an embedded JSON schema
func LoadSchema(path string) (*gojsonschema.Schema, error) {
	data, err := schemaFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return schema, nil
}

func schemaFor(task models.TaskName) (*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[models.TaskName]*gojsonschema.Schema)
		for _, name := range []models.TaskName{
			models.TaskPlanner, models.TaskFacts, models.TaskPro, models.TaskCon, models.TaskRisk, models.TaskSynth,
		} {
			schema, err := LoadSchema(schemaFile(name))
			if err != nil {
				schemasErr = err
				return
			}
			schemas[name] = schema
		}
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	schema, ok := schemas[task]
	if !ok {
		return nil, fmt.Errorf("no schema for task %s", task)
	}
	return schema, nil
}

// ValidateOutput validates a task output against the schema of its task
func ValidateOutput(task models.TaskName, output json.RawMessage) error {
	schema, err := schemaFor(task)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(output))
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}
		return fmt.Errorf("%s output validation failed: %s", task, strings.Join(errors, "; "))
	}

	return nil
}

// ValidateAndParseOutput validates a task output and decodes it into its typed form
func ValidateAndParseOutput(task models.TaskName, output json.RawMessage) (models.Output, error) {
	if err := ValidateOutput(task, output); err != nil {
		return nil, err
	}
	return models.DecodeOutput(task, output)
}
