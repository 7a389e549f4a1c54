package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"decision-copilot/internal/models"
)

// ItemsSection is one analysis list of a report. Present is false when the
// task produced no output in the latest run.
type ItemsSection struct {
	Title   string
	Present bool
	Items   []string
}

// FinalReport is the tolerant, display-oriented view of the synth output
type FinalReport struct {
	Recommendation string
	Confidence     string
	Rationale      string
	KeyTradeoffs   []string
	NextSteps      []string
	OpenQuestions  []string
	Invalid        bool
}

// DecisionDocument is everything an export renders
type DecisionDocument struct {
	Decision *models.Decision
	RunID    string
	Sections []ItemsSection
	Report   *FinalReport
}

var sectionTitles = []struct {
	task  models.TaskName
	title string
}{
	{models.TaskFacts, "Facts"},
	{models.TaskPro, "Pros"},
	{models.TaskCon, "Cons"},
	{models.TaskRisk, "Risks"},
}

// ExportService renders decisions as markdown or PDF
type ExportService struct {
	store Store
	pdf   *PDFService
}

// NewExportService creates a new export service
func NewExportService(store Store, pdf *PDFService) *ExportService {
	return &ExportService{store: store, pdf: pdf}
}

// LoadDocument collects the decision and the outputs of its latest run.
// It returns an error wrapping models.ErrNotFound when the decision has no run.
func (s *ExportService) LoadDocument(ctx context.Context, decisionID string) (*DecisionDocument, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	run, err := s.store.GetLatestRun(ctx, decision.ID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, run.ID, models.AnalysisTasks)
	if err != nil {
		return nil, err
	}

	outputs := make(map[models.TaskName]json.RawMessage, len(tasks))
	for _, task := range tasks {
		outputs[task.TaskName] = task.Output
	}
	return BuildDocument(decision, run.ID, outputs), nil
}

// BuildDocument turns raw task outputs into renderable sections
func BuildDocument(decision *models.Decision, runID string, outputs map[models.TaskName]json.RawMessage) *DecisionDocument {
	doc := &DecisionDocument{Decision: decision, RunID: runID}
	for _, st := range sectionTitles {
		doc.Sections = append(doc.Sections, parseSection(st.title, outputs[st.task]))
	}
	if len(decision.FinalReport) > 0 {
		doc.Report = parseFinalReport(decision.FinalReport)
	}
	return doc
}

func parseSection(title string, raw json.RawMessage) ItemsSection {
	section := ItemsSection{Title: title}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return section
	}
	section.Present = true
	if items, ok := fields["items"].([]interface{}); ok {
		section.Items = stringify(items)
	}
	return section
}

func parseFinalReport(raw json.RawMessage) *FinalReport {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &FinalReport{Invalid: true}
	}
	return &FinalReport{
		Recommendation: stringField(fields["recommendation"]),
		Confidence:     stringField(fields["confidence"]),
		Rationale:      stringField(fields["rationale"]),
		KeyTradeoffs:   listField(fields["key_tradeoffs"]),
		NextSteps:      listField(fields["next_steps"]),
		OpenQuestions:  listField(fields["open_questions"]),
	}
}

func stringField(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// listField accepts a list or a single value
func listField(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return stringify(val)
	case string:
		if val == "" {
			return nil
		}
	}
	return []string{fmt.Sprint(v)}
}

func stringify(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// Markdown renders the latest run of a decision as markdown
func (s *ExportService) Markdown(ctx context.Context, decisionID string) (string, error) {
	doc, err := s.LoadDocument(ctx, decisionID)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(doc), nil
}

// PDF renders the latest run of a decision as a PDF document
func (s *ExportService) PDF(ctx context.Context, decisionID string) ([]byte, error) {
	doc, err := s.LoadDocument(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return s.pdf.GenerateDecisionPDF(doc)
}

// RenderMarkdown renders a decision document
func RenderMarkdown(doc *DecisionDocument) string {
	var md []string

	md = append(md, "# Decision Report\n")
	md = append(md, "## Question\n", doc.Decision.Question+"\n")
	if doc.Decision.Context != "" {
		md = append(md, "## Context\n", doc.Decision.Context+"\n")
	}

	md = append(md, "## Analysis\n")
	for _, section := range doc.Sections {
		if !section.Present {
			continue
		}
		md = append(md, fmt.Sprintf("### %s\n", section.Title))
		if len(section.Items) == 0 {
			md = append(md, "_No items provided._\n")
			continue
		}
		for _, item := range section.Items {
			md = append(md, "- "+item)
		}
		md = append(md, "")
	}

	if doc.Report != nil {
		md = append(md, "## Final Recommendation\n")
		md = appendFinalReport(md, doc.Report)
	}

	return strings.Join(md, "\n")
}

func appendFinalReport(md []string, report *FinalReport) []string {
	if report.Invalid {
		return append(md, "_Invalid final report format._\n")
	}
	if report.Recommendation != "" {
		md = append(md, fmt.Sprintf("**Recommendation**: %s\n", report.Recommendation))
	}
	if report.Confidence != "" {
		md = append(md, fmt.Sprintf("**Confidence**: %s\n", report.Confidence))
	}
	if report.Rationale != "" {
		md = append(md, "**Rationale**:\n", report.Rationale+"\n")
	}
	md = appendBullets(md, "Key Trade-offs", report.KeyTradeoffs)
	md = appendBullets(md, "Next Steps", report.NextSteps)
	md = appendBullets(md, "Open Questions", report.OpenQuestions)
	return md
}

func appendBullets(md []string, title string, values []string) []string {
	if len(values) == 0 {
		return md
	}
	md = append(md, fmt.Sprintf("**%s**:\n", title))
	for _, v := range values {
		md = append(md, "- "+v)
	}
	return append(md, "")
}
