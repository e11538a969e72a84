package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func performRequest(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, UserIDFromContext(c.Request().Context()))
	})
	return rec, handler(c)
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	cfg := testTokenConfig()
	token, err := IssueToken(cfg, "user-42", RoleAgent)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec, err := performRequest(t, JWTMiddleware(cfg), "Bearer "+token)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Body.String() != "user-42" {
		t.Errorf("expected user ID on context, got %q", rec.Body.String())
	}
}

func TestJWTMiddlewareMissingHeader(t *testing.T) {
	_, err := performRequest(t, JWTMiddleware(testTokenConfig()), "")
	assertHTTPError(t, err, http.StatusUnauthorized)
}

func TestJWTMiddlewareBadFormat(t *testing.T) {
	_, err := performRequest(t, JWTMiddleware(testTokenConfig()), "Basic abc123")
	assertHTTPError(t, err, http.StatusUnauthorized)
}

func TestJWTMiddlewareInvalidToken(t *testing.T) {
	_, err := performRequest(t, JWTMiddleware(testTokenConfig()), "Bearer invalid.token.here")
	assertHTTPError(t, err, http.StatusUnauthorized)
}

func TestRequireOrganiser(t *testing.T) {
	cfg := testTokenConfig()

	chain := func(role string) error {
		token, err := IssueToken(cfg, "user-1", role)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := JWTMiddleware(cfg)(RequireOrganiser()(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		}))
		return handler(c)
	}

	if err := chain(RoleOrganiser); err != nil {
		t.Errorf("organiser should pass, got %v", err)
	}
	assertHTTPError(t, chain(RoleAgent), http.StatusForbidden)
}

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}
