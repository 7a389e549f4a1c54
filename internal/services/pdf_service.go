package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
)

// PDFService handles PDF generation for decision reports
type PDFService struct{}

// NewPDFService creates a new PDF service
func NewPDFService() *PDFService {
	return &PDFService{}
}

// GenerateDecisionPDF generates a PDF from a decision document
func (s *PDFService) GenerateDecisionPDF(doc *DecisionDocument) ([]byte, error) {
	if doc == nil || doc.Decision == nil {
		return nil, fmt.Errorf("invalid report data")
	}

	// Create PDF document (A4, portrait)
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")

	// Core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(108, 117, 125) // Gray
		pdf.SetX(15)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 102, 204) // Blue
	pdf.CellFormat(0, 20, "Decision Report", "", 0, "C", false, 0, "")

	pdf.Ln(15)
	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(108, 117, 125)
	pdf.CellFormat(0, 10, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("January 2, 2006")), "", 0, "C", false, 0, "")

	s.addHeader(pdf, "Question")
	s.addParagraph(pdf, tr(doc.Decision.Question))

	if doc.Decision.Context != "" {
		s.addHeader(pdf, "Context")
		s.addParagraph(pdf, tr(doc.Decision.Context))
	}

	s.addHeader(pdf, "Analysis")
	for _, section := range doc.Sections {
		if !section.Present {
			continue
		}
		s.addSubheader(pdf, section.Title)
		if len(section.Items) == 0 {
			s.addParagraph(pdf, "No items provided.")
			continue
		}
		s.addBullets(pdf, tr, section.Items)
	}

	if doc.Report != nil {
		s.addHeader(pdf, "Final Recommendation")
		s.addFinalReport(pdf, tr, doc.Report)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// addHeader adds a header section to the PDF
func (s *PDFService) addHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41) // Dark gray
	pdf.CellFormat(0, 10, title, "", 0, "L", false, 0, "")

	pdf.Ln(10)
	pdf.SetLineWidth(0.5)
	pdf.SetDrawColor(0, 102, 204)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(4)
}

func (s *PDFService) addSubheader(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 102, 204)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

func (s *PDFService) addParagraph(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 5, strings.TrimSpace(text), "", "L", false)
	pdf.Ln(2)
}

func (s *PDFService) addBullets(pdf *gofpdf.Fpdf, tr func(string) string, items []string) {
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(33, 37, 41)
	for _, item := range items {
		pdf.SetX(20)
		pdf.CellFormat(5, 5, "-", "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 5, tr(strings.TrimSpace(item)), "", "L", false)
	}
	pdf.Ln(2)
}

func (s *PDFService) addFinalReport(pdf *gofpdf.Fpdf, tr func(string) string, report *FinalReport) {
	if report.Invalid {
		s.addParagraph(pdf, "Invalid final report format.")
		return
	}

	// Recommendation box
	if report.Recommendation != "" || report.Confidence != "" {
		pdf.SetFillColor(248, 249, 250) // Light gray
		pdf.SetDrawColor(0, 102, 204)
		startY := pdf.GetY()
		pdf.Rect(15, startY, 180, 18, "FD")

		pdf.SetXY(23, startY+3)
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(33, 37, 41)
		pdf.CellFormat(0, 6, "Recommendation: "+tr(humanize(report.Recommendation)), "", 1, "L", false, 0, "")
		pdf.SetX(23)
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, "Confidence: "+tr(report.Confidence), "", 1, "L", false, 0, "")
		pdf.SetY(startY + 18)
		pdf.Ln(4)
	}

	if report.Rationale != "" {
		s.addSubheader(pdf, "Rationale")
		s.addParagraph(pdf, tr(report.Rationale))
	}
	for _, list := range []struct {
		title string
		items []string
	}{
		{"Key Trade-offs", report.KeyTradeoffs},
		{"Next Steps", report.NextSteps},
		{"Open Questions", report.OpenQuestions},
	} {
		if len(list.items) == 0 {
			continue
		}
		s.addSubheader(pdf, list.title)
		s.addBullets(pdf, tr, list.items)
	}
}

// humanize turns "conditional_go" into "Conditional go"
func humanize(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "_", " ")
	return strings.ToUpper(value[:1]) + value[1:]
}
