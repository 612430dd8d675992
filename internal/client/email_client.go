package client

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"

	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/model"
)

// Notifier delivers report notifications
type Notifier interface {
	SendReportEmail(ctx context.Context, email ReportEmail) error
	IsConfigured() bool
}

// ReportEmail is the content of the "your report is ready" message
type ReportEmail struct {
	To            string
	CandidateName string
	ScenarioName  string
	ReportURL     string
	Report        *model.AssessmentReport
}

var reportEmailTmpl = template.Must(template.New("report").Parse(`<p>Hi {{if .CandidateName}}{{.CandidateName}}{{else}}there{{end}},</p>
<p>Your report for <strong>{{.ScenarioName}}</strong> is ready.</p>
{{with .Report}}<p>Overall: {{printf "%.1f" .OverallScore}} / 4 ({{.OverallLevel}})</p>{{end}}
<p><a href="{{.ReportURL}}">View your report</a></p>`))

// EmailClient sends email through Resend
type EmailClient struct {
	client *resend.Client
	from   string
}

// NewEmailClient creates a new Resend client
func NewEmailClient(cfg *config.EmailConfig) *EmailClient {
	c := &EmailClient{from: cfg.From}
	if cfg.ResendAPIKey != "" {
		c.client = resend.NewClient(cfg.ResendAPIKey)
	}
	return c
}

// SendReportEmail renders and sends the report notification
func (c *EmailClient) SendReportEmail(ctx context.Context, email ReportEmail) error {
	if !c.IsConfigured() {
		return fmt.Errorf("email client not configured")
	}
	if email.To == "" {
		return fmt.Errorf("missing recipient")
	}

	var body bytes.Buffer
	if err := reportEmailTmpl.Execute(&body, email); err != nil {
		return fmt.Errorf("failed to render report email: %w", err)
	}

	_, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{email.To},
		Subject: fmt.Sprintf("Your %s assessment report is ready", email.ScenarioName),
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to send report email: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *EmailClient) IsConfigured() bool {
	return c.client != nil
}
