package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestRequestLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	h = RequestLogger(logger)(h)
	h = Actor(h)
	h = chimw.RequestID(h)

	req := httptest.NewRequest("PUT", "/api/households/demo/chores", nil)
	req.Header.Set(ActorHeader, "Abhay")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"level=WARN", "status=409", "actor=Abhay", "request_id=", "path=/api/households/demo/chores"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestRequestLoggerOmitsIPActor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Actor(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	line := buf.String()
	if strings.Contains(line, "actor=") {
		t.Errorf("unexpected actor attr: %s", line)
	}
	if !strings.Contains(line, "level=INFO") {
		t.Errorf("expected info level: %s", line)
	}
}

func TestRequestLoggerQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := RequestLogger(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	if line := buf.String(); !strings.Contains(line, "level=DEBUG") || !strings.Contains(line, "bytes=2") {
		t.Errorf("quiet success line = %s", line)
	}

	buf.Reset()
	failing := RequestLogger(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	if line := buf.String(); !strings.Contains(line, "level=ERROR") {
		t.Errorf("quiet failure line = %s", line)
	}
}

func TestLevelFor(t *testing.T) {
	for status, want := range map[int]slog.Level{200: slog.LevelInfo, 304: slog.LevelInfo, 404: slog.LevelWarn, 429: slog.LevelWarn, 500: slog.LevelError} {
		if got := levelFor(status); got != want {
			t.Errorf("levelFor(%d) = %v, want %v", status, got, want)
		}
	}
}
