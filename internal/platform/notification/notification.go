// Package notification delivers transactional email with template rendering
// and an in-memory delivery log. Delivery is best-effort: callers log failures
// and move on, they never fail the triggering request.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification represents a single outbound email.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
}

// SendEmail delivers one message via the configured relay.
func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.Addr, nil, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "patient-created",
			Name:    "Patient Created",
			Subject: "A patient has been created",
			Body:    "Go to the site to see the new patient {{patient_name}} in {{organisation_name}}.",
		},
		{
			ID:      "agent-invited",
			Name:    "Agent Invited",
			Subject: "You were invited to be an agent",
			Body:    "You were added as an agent on {{organisation_name}}. Please log in with {{email}} to start working.",
		},
		{
			ID:      "followup-added",
			Name:    "Follow-up Added",
			Subject: "New follow-up for {{patient_name}}",
			Body:    "A follow-up note was added for {{patient_name}}: {{notes}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Manager orchestrates sending, storage, and retrieval of notifications.
type Manager struct {
	sender        EmailSender
	templates     *TemplateEngine
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewManager constructs a Manager.
func NewManager(sender EmailSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		sender:        sender,
		templates:     tpl,
		notifications: make(map[string]*Notification),
	}
}

// Send dispatches a notification, assigns an ID and timestamps, and persists
// the result in-memory.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// Retry re-sends a failed notification. Returns an error if the notification
// is not in "failed" status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)

	m.mu.Lock()
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
