package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that limits the maximum request body size.
// defaultLimit applies to ordinary JSON endpoints while uploadLimit applies
// to follow-up attachment uploads, which carry multipart file content.
//
// Limits are specified as human-readable strings: "1M" for 1 megabyte,
// "10M" for 10 megabytes, etc. Supported suffixes are K (kilobytes),
// M (megabytes), and G (gigabytes). A bare number is treated as bytes.
func BodyLimit(defaultLimit string, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	uploadBytes := parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Body == nil || c.Request().Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			path := c.Request().URL.Path
			if c.Request().Method == http.MethodPost && strings.HasSuffix(path, "/attachments") {
				limit = uploadBytes
			}

			// Check Content-Length header first for early rejection
			if c.Request().ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds limit of %d bytes", limit))
			}

			// Wrap the body with a limiting reader to enforce the limit
			// even when Content-Length is missing or incorrect.
			c.Request().Body = &limitedReadCloser{
				reader: io.LimitReader(c.Request().Body, limit+1),
				closer: c.Request().Body,
				limit:  limit,
			}

			return next(c)
		}
	}
}

type limitedReadCloser struct {
	reader io.Reader
	closer io.Closer
	limit  int64
	read   int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.reader.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds limit of %d bytes", l.limit))
	}
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}

// parseLimit converts a human-readable size string to bytes. Unparseable
// values fall back to 1 MB.
func parseLimit(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 1 << 20
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * multiplier
}
