package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medleads/medleads/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv) {
	env := newTestEnv()
	return NewHandler(env.svc), env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID.String())
	return req.WithContext(ctx)
}

func TestSignupHandler(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/auth/signup", `{
		"email": "owner@example.com",
		"phone": "07000000001",
		"first_name": "Olive",
		"last_name": "Owner",
		"password": "password123",
		"organisation_name": "Northside Clinic"
	}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Signup(c); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		User         User                `json:"user"`
		Organisation OrganisationProfile `json:"organisation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "owner@example.com" {
		t.Errorf("unexpected email: %q", resp.User.Email)
	}
	if resp.Organisation.UserID != resp.User.ID {
		t.Error("expected organisation to reference the new user")
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not leak the password hash")
	}
}

func TestSignupHandler_DuplicateEmail(t *testing.T) {
	h, env := newTestHandler()
	registerOrganiser(t, env)
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/auth/signup", `{
		"email": "owner@example.com",
		"phone": "07000000099",
		"first_name": "Other",
		"password": "password123"
	}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Signup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
	msg, ok := he.Message.(map[string]string)
	if !ok || msg["field"] != "email" {
		t.Errorf("expected email field error, got %v", he.Message)
	}
}

func TestLoginHandler(t *testing.T) {
	h, env := newTestHandler()
	registerOrganiser(t, env)
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/auth/login", `{
		"email": "owner@example.com",
		"password": "password123"
	}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token in the response")
	}
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	h, env := newTestHandler()
	registerOrganiser(t, env)
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/auth/login", `{
		"email": "owner@example.com",
		"password": "nope"
	}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", he.Code)
	}
}

func TestCreateAgentHandler(t *testing.T) {
	h, env := newTestHandler()
	owner, _ := registerOrganiser(t, env)
	e := echo.New()

	req := authed(jsonRequest(http.MethodPost, "/agents", `{
		"email": "agent@example.com",
		"phone": "07000000002",
		"first_name": "Amir",
		"last_name": "Agent",
		"password": "password123",
		"department": "Cardiologist"
	}`), owner.ID)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateAgent(c); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var agent Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agent); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if agent.Department != "Cardiologist" {
		t.Errorf("unexpected department: %q", agent.Department)
	}
}

func TestListAgentsHandler(t *testing.T) {
	h, env := newTestHandler()
	owner, _ := registerOrganiser(t, env)
	scope, _ := env.svc.ResolveScope(context.Background(), owner.ID)
	if _, err := env.svc.CreateAgent(context.Background(), scope, CreateAgentInput{
		Email: "agent@example.com", Phone: "07000000002", FirstName: "Amir",
		Password: "password123", Department: "Cardiologist",
	}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	e := echo.New()
	req := authed(httptest.NewRequest(http.MethodGet, "/agents", nil), owner.ID)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListAgents(c); err != nil {
		t.Fatalf("ListAgents: %v", err)
	}

	var resp struct {
		Data  []Agent `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Errorf("expected 1 agent, got total=%d len=%d", resp.Total, len(resp.Data))
	}
}

func TestGetAgentHandler_NotFound(t *testing.T) {
	h, env := newTestHandler()
	owner, _ := registerOrganiser(t, env)
	e := echo.New()

	req := authed(httptest.NewRequest(http.MethodGet, "/agents/"+uuid.NewString(), nil), owner.ID)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.GetAgent(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", he.Code)
	}
}
