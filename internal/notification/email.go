package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/Merlin1A/air-pulse/internal/protocol"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

var alertTemplate = template.Must(template.New("alert").Parse(`
Air Quality Alert
=================

User: {{.UserID}}
Location: {{.LocationKey}}
Pollutant: {{.Pollutant}}
Observed: {{printf "%.1f" .Value}} {{.Unit}}
Your threshold: {{printf "%.1f" .Threshold}} {{.Unit}}
Severity: {{printf "%.2f" .Severity}}x threshold
Measured at: {{.ReadingTime.Format "2006-01-02 15:04 MST"}}
Alert ID: {{.AlertID}}

{{.Pollutant}} at {{.LocationKey}} is above the level you asked to be warned
about. You will not be alerted again for {{.Pollutant}} until the cooldown
period has passed.

---
air-pulse notifications
`))

// EmailNotifier sends alert emails over SMTP
type EmailNotifier struct {
	config *config.SMTPConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// Subject returns the email subject line for an alert
func Subject(alert *protocol.AlertMessage) string {
	return fmt.Sprintf("Air quality alert: %s at %s (%.2fx threshold)",
		alert.Pollutant, alert.LocationKey, alert.Severity)
}

// RenderAlert renders the plain-text body for an alert
func RenderAlert(alert *protocol.AlertMessage) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, alert); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendAlert emails a single alert
func (e *EmailNotifier) SendAlert(alert *protocol.AlertMessage) error {
	body, err := RenderAlert(alert)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(Subject(alert), body)
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		fmt.Printf("SMTP not configured, skipping email:\nSubject: %s\n%s\n", subject, body)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := smtp.SendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	fmt.Printf("Email sent successfully: %s\n", subject)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	fmt.Println("SMTP connection test successful")
	return nil
}
