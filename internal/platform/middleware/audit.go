package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medleads/medleads/internal/platform/auth"
)

// AuditEntry captures who accessed which record collection, when, from
// where, and the action type.
type AuditEntry struct {
	UserID     string
	Role       string
	Collection string
	Action     string // read, create, update, delete
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. The middleware falls back to
// structured logging when no recorder is supplied, so tests can provide a
// mock implementation.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that logs every access to patient-facing routes:
// which user touched which collection and what they did to it.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			// Execute the handler first so we capture the response status
			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
				UserID:     auth.UserIDFromContext(ctx),
				Role:       auth.RoleFromContext(ctx),
				Action:     methodToAction(req.Method),
				Collection: collectionFromPath(path),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "record_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("collection", entry.Collection).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// collectionFromPath parses the record collection from a URL path:
// /api/v1/patients/123 -> patients.
func collectionFromPath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}
