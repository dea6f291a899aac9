package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// EmailConfig holds SMTP settings and the address of every escalation contact
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	// Recipients maps a contact role (ciso, security-team, ...) to an address
	Recipients map[string]string
	// ContainmentContact receives containment checklists
	ContainmentContact string
}

// Configured reports whether SMTP credentials are present
func (c EmailConfig) Configured() bool {
	return c.SMTPUsername != "" && c.SMTPPassword != ""
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails incident notifications to the contacts of a tier
type EmailNotifier struct {
	config EmailConfig
	logger *zap.Logger
	send   sendFunc
}

// NewEmailNotifier creates a notifier. Without SMTP credentials messages are only logged.
func NewEmailNotifier(config EmailConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ContainmentContact == "" {
		config.ContainmentContact = "security-team"
	}
	return &EmailNotifier{config: config, logger: logger, send: smtp.SendMail}
}

type incidentEmailData struct {
	Key         string
	Type        model.IncidentType
	Severity    model.Severity
	ReportedAt  string
	Description string
	Affected    string
	Actions     []string
}

var incidentTemplate = template.Must(template.New("incident").Parse(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
	<h2>{{.Severity}} security incident {{.Key}}</h2>
	<p><strong>Type:</strong> {{.Type}}<br>
	<strong>Reported:</strong> {{.ReportedAt}}<br>
	<strong>Affected systems:</strong> {{.Affected}}</p>
	<p>{{.Description}}</p>
	{{if .Actions}}
	<h3>Containment steps</h3>
	<ol>{{range .Actions}}<li>{{.}}</li>{{end}}</ol>
	{{end}}
	<hr>
	<p style="color: #666; font-size: 12px;">Storefront Guard</p>
</body>
</html>
`))

// NotifyStakeholders mails every contact that has a configured address
func (e *EmailNotifier) NotifyStakeholders(ctx context.Context, incident *model.SecurityIncident, contacts []string) error {
	subject := fmt.Sprintf("[%s] %s incident %s", incident.Severity, incident.Type, incident.Key)
	return e.deliver(ctx, incident, contacts, subject, nil)
}

// ImplementContainment mails the containment checklist to the containment contact
func (e *EmailNotifier) ImplementContainment(ctx context.Context, incident *model.SecurityIncident, actions []string) error {
	subject := fmt.Sprintf("[%s] containment for incident %s", incident.Severity, incident.Key)
	return e.deliver(ctx, incident, []string{e.config.ContainmentContact}, subject, actions)
}

func (e *EmailNotifier) deliver(ctx context.Context, incident *model.SecurityIncident, contacts []string, subject string, actions []string) error {
	var to []string
	for _, contact := range contacts {
		if addr, ok := e.config.Recipients[contact]; ok && addr != "" {
			to = append(to, addr)
			continue
		}
		e.logger.Warn("no email address for contact", zap.String("contact", contact))
	}
	if len(to) == 0 {
		return nil
	}

	if !e.config.Configured() {
		e.logger.Info("SMTP not configured, incident email not sent",
			zap.String("id", incident.Key),
			zap.Strings("to", to),
			zap.String("subject", subject))
		return nil
	}

	body, err := renderIncidentEmail(incident, actions)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	auth := smtp.PlainAuth("", e.config.SMTPUsername, e.config.SMTPPassword, e.config.SMTPHost)
	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		e.config.FromName, e.config.FromEmail, strings.Join(to, ", "), subject, body,
	))

	addr := fmt.Sprintf("%s:%s", e.config.SMTPHost, e.config.SMTPPort)

	// smtp.SendMail takes no context; the caller stops waiting at the deadline
	// and the send finishes or fails on its own
	done := make(chan error, 1)
	go func() {
		done <- e.send(addr, auth, e.config.FromEmail, to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send incident email: %w", err)
		}
		return nil
	case <-ctx.Done():
		e.logger.Warn("incident email still in flight at deadline", zap.String("id", incident.Key), zap.Strings("to", to))
		return fmt.Errorf("failed to send incident email: %w", ctx.Err())
	}
}

func renderIncidentEmail(incident *model.SecurityIncident, actions []string) (string, error) {
	affected := "none listed"
	if len(incident.AffectedSystems) > 0 {
		affected = strings.Join(incident.AffectedSystems, ", ")
	}
	data := incidentEmailData{
		Key:         incident.Key,
		Type:        incident.Type,
		Severity:    incident.Severity,
		ReportedAt:  incident.ReportedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		Description: incident.Description,
		Affected:    affected,
		Actions:     actions,
	}

	var buf bytes.Buffer
	if err := incidentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
