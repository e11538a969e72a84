package notification

import (
	"context"
	"testing"
)

func TestTemplateEngineRender(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render("patient-created", map[string]string{
		"patient_name":      "Jane Roe",
		"organisation_name": "Northside Clinic",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "A patient has been created" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if body != "Go to the site to see the new patient Jane Roe in Northside Clinic." {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestTemplateEngineRenderMissingKeys(t *testing.T) {
	e := NewTemplateEngine()

	_, body, err := e.Render("patient-created", map[string]string{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if body != "Go to the site to see the new patient {{patient_name}} in {{organisation_name}}." {
		t.Errorf("expected placeholders left as-is, got %q", body)
	}
}

func TestTemplateEngineUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngineRegisterOverride(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{
		ID:      "patient-created",
		Subject: "custom subject",
		Body:    "custom body",
	})

	subject, body, err := e.Render("patient-created", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "custom subject" || body != "custom body" {
		t.Errorf("expected override to win, got %q / %q", subject, body)
	}
}

func TestManagerSend(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, NewTemplateEngine())

	n := &Notification{
		Recipient: "owner@example.com",
		Subject:   "hello",
		Body:      "world",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if n.Status != "sent" {
		t.Errorf("expected status sent, got %q", n.Status)
	}
	if n.SentAt == nil {
		t.Error("expected SentAt to be set")
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].To != "owner@example.com" {
		t.Errorf("unexpected recipient: %q", calls[0].To)
	}
}

func TestManagerSendFailure(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	mgr := NewManager(sender, NewTemplateEngine())

	n := &Notification{Recipient: "owner@example.com", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" {
		t.Errorf("expected status failed, got %q", n.Status)
	}
	if n.Error != "relay down" {
		t.Errorf("expected error message recorded, got %q", n.Error)
	}

	// The failed notification is still stored for later retry
	stored, err := mgr.Get(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != "failed" {
		t.Errorf("expected stored status failed, got %q", stored.Status)
	}
}

func TestManagerSendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, NewTemplateEngine())

	n, err := mgr.SendFromTemplate(context.Background(), "agent-invited", map[string]string{
		"organisation_name": "Northside Clinic",
		"email":             "agent@example.com",
	}, "agent@example.com")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if n.TemplateID != "agent-invited" {
		t.Errorf("unexpected template ID: %q", n.TemplateID)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].Subject != "You were invited to be an agent" {
		t.Errorf("unexpected subject: %q", calls[0].Subject)
	}
}

func TestManagerRetry(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	mgr := NewManager(sender, NewTemplateEngine())

	n := &Notification{Recipient: "owner@example.com", Subject: "s", Body: "b"}
	_ = mgr.Send(context.Background(), n)

	sender.ShouldFail = false
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	stored, _ := mgr.Get(context.Background(), n.ID)
	if stored.Status != "sent" {
		t.Errorf("expected status sent after retry, got %q", stored.Status)
	}
	if stored.Error != "" {
		t.Errorf("expected error cleared after retry, got %q", stored.Error)
	}

	// Retrying a sent notification is rejected
	if err := mgr.Retry(context.Background(), n.ID); err == nil {
		t.Error("expected error retrying a sent notification")
	}
}

func TestManagerStats(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, NewTemplateEngine())

	_ = mgr.Send(context.Background(), &Notification{Recipient: "a@example.com"})
	_ = mgr.Send(context.Background(), &Notification{Recipient: "b@example.com"})

	sender.ShouldFail = true
	sender.FailError = "boom"
	_ = mgr.Send(context.Background(), &Notification{Recipient: "c@example.com"})

	stats := mgr.Stats(context.Background())
	if stats["sent"] != 2 {
		t.Errorf("expected 2 sent, got %d", stats["sent"])
	}
	if stats["failed"] != 1 {
		t.Errorf("expected 1 failed, got %d", stats["failed"])
	}
}
