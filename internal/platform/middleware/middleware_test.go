package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequestID_Generated(t *testing.T) {
	c, rec := newContext()
	err := RequestID()(func(c echo.Context) error { return nil })(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Fatal("expected request id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != rid {
		t.Errorf("expected response header %q, got %q", rid, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_Propagated(t *testing.T) {
	c, rec := newContext()
	c.Request().Header.Set(RequestIDHeader, "abc-123")
	RequestID()(func(c echo.Context) error { return nil })(c)
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("expected inbound id to be kept, got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	c, rec := newContext()
	c.Request().Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	RequestID()(func(c echo.Context) error { return nil })(c)
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("expected a fresh uuid, got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c, _ := newContext()
	c.Set("request_id", "rid-1")

	err := Logger(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"request_id":"rid-1"`, `"status":204`, `"path":"/api/v1/patients"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestLogger_HTTPErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newContext()
	Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})(c)
	if !strings.Contains(buf.String(), `"status":404`) || !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("unexpected log line: %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newContext()
	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("boom")
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected panic to be logged: %s", buf.String())
	}
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	c, _ := newContext()
	var hasDeadline bool
	RequestTimeout(time.Second)(func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	})(c)
	if !hasDeadline {
		t.Error("expected request context to carry a deadline")
	}
}

func TestRequestTimeout_Maps504(t *testing.T) {
	c, _ := newContext()
	err := RequestTimeout(time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_PassesOtherErrors(t *testing.T) {
	c, _ := newContext()
	sentinel := errors.New("boom")
	err := RequestTimeout(time.Second)(func(c echo.Context) error { return sentinel })(c)
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}
