package services

import (
	"context"
	"log"
)

// ReportSender delivers a finished decision report
type ReportSender interface {
	SendDecisionReportEmail(toEmail string, doc *DecisionDocument, pdfData []byte) error
}

// ReportMailer mails the report of a finalized decision to its notify address
type ReportMailer struct {
	exporter *ExportService
	pdf      *PDFService
	sender   ReportSender
}

// NewReportMailer creates a new report mailer
func NewReportMailer(exporter *ExportService, pdf *PDFService, sender ReportSender) *ReportMailer {
	return &ReportMailer{
		exporter: exporter,
		pdf:      pdf,
		sender:   sender,
	}
}

// DecisionCompleted sends the report if the decision asked for it.
// Failures are logged and never affect the decision.
func (m *ReportMailer) DecisionCompleted(ctx context.Context, decisionID string) {
	doc, err := m.exporter.LoadDocument(ctx, decisionID)
	if err != nil {
		log.Printf("ERROR: Failed to load report of decision %s for mailing: %v", decisionID, err)
		return
	}

	email := doc.Decision.NotifyEmail
	if email == "" {
		return
	}

	pdfData, err := m.pdf.GenerateDecisionPDF(doc)
	if err != nil {
		log.Printf("ERROR: Failed to generate PDF for decision %s: %v", decisionID, err)
		// Continue without PDF attachment
		pdfData = nil
	}

	if err := m.sender.SendDecisionReportEmail(email, doc, pdfData); err != nil {
		log.Printf("ERROR: Failed to send report email to %s for decision %s: %v", email, decisionID, err)
		return
	}

	log.Printf("Successfully sent report email to %s for decision %s", email, decisionID)
}
