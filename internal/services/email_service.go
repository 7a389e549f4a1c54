package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"time"

	"decision-copilot/internal/config"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailService handles email sending via SendGrid
type EmailService struct {
	apiKey    string
	fromEmail string
	client    *sendgrid.Client
}

// NewEmailService creates a new email service
func NewEmailService(cfg config.EmailConfig) *EmailService {
	client := sendgrid.NewSendClient(cfg.APIKey)
	return &EmailService{
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		client:    client,
	}
}

// SendDecisionReportEmail sends the finished decision report with an optional PDF attachment
func (s *EmailService) SendDecisionReportEmail(toEmail string, doc *DecisionDocument, pdfData []byte) error {
	from := mail.NewEmail("Decision Copilot", s.fromEmail)
	to := mail.NewEmail("", toEmail)
	subject := fmt.Sprintf("Decision Report - %s", truncate(doc.Decision.Question, 80))

	htmlContent := buildDecisionEmailHTML(doc)
	plainTextContent := buildDecisionEmailText(doc)

	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)

	if len(pdfData) > 0 {
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(pdfData))
		attachment.SetType("application/pdf")
		attachment.SetFilename(fmt.Sprintf("decision-%s.pdf", doc.Decision.ID))
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

// buildDecisionEmailHTML builds the HTML content for the decision report email
func buildDecisionEmailHTML(doc *DecisionDocument) string {
	var b bytes.Buffer

	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #0066cc; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
        .content { background-color: #f8f9fa; padding: 20px; border-radius: 0 0 8px 8px; }
        .summary-box { background-color: white; padding: 15px; border-radius: 5px; margin: 15px 0; border-left: 4px solid #0066cc; }
        .footer { text-align: center; color: #666; font-size: 12px; margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="header">
        <h1 style="margin: 0;">Decision Report</h1>
        <p style="margin: 5px 0 0 0; opacity: 0.9;">` + html.EscapeString(doc.Decision.Question) + `</p>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p>The analysis of your decision is complete.</p>`)

	if r := doc.Report; r != nil && !r.Invalid {
		b.WriteString(`
        <div class="summary-box">
            <h3 style="margin-top: 0; color: #0066cc;">Recommendation: ` + html.EscapeString(humanize(r.Recommendation)) + `</h3>
            <p><strong>Confidence:</strong> ` + html.EscapeString(r.Confidence) + `</p>
            <p>` + html.EscapeString(r.Rationale) + `</p>
        </div>`)
	}

	b.WriteString(`
        <p>The complete report is attached as a PDF document.</p>
        <p>Best regards,<br>Decision Copilot</p>
    </div>
    <div class="footer">
        <p>This is an automated email. Please do not reply.</p>
        <p>Generated on ` + time.Now().UTC().Format(time.RFC1123) + `</p>
    </div>
</body>
</html>`)

	return b.String()
}

// buildDecisionEmailText builds the plain text content for the decision report email
func buildDecisionEmailText(doc *DecisionDocument) string {
	var b bytes.Buffer

	b.WriteString(fmt.Sprintf(`Decision Report
%s

Hello,

The analysis of your decision is complete.

`, doc.Decision.Question))

	if r := doc.Report; r != nil && !r.Invalid {
		b.WriteString(fmt.Sprintf(`Recommendation: %s
Confidence: %s

%s

`, humanize(r.Recommendation), r.Confidence, r.Rationale))
	}

	b.WriteString(`The complete report is attached as a PDF document.

Best regards,
Decision Copilot

---
This is an automated email. Please do not reply.
Generated on ` + time.Now().UTC().Format(time.RFC1123))

	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
