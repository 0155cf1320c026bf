package cmd_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	cmd "github.com/rohmanhakim/crawl-engine/internal/cli"
	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/engine"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner stops for good only when forced.
type fakeRunner struct {
	mu       sync.Mutex
	stops    []bool
	startErr error
	done     chan struct{}
	once     sync.Once
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{})}
}

func (f *fakeRunner) Start(ctx context.Context, seeds ...*crawl.Request) error {
	return f.startErr
}

func (f *fakeRunner) Stop(force bool) {
	f.mu.Lock()
	f.stops = append(f.stops, force)
	f.mu.Unlock()
	if force {
		f.once.Do(func() { close(f.done) })
	}
}

func (f *fakeRunner) Status() engine.Status { return engine.Status{State: engine.StateRunning} }
func (f *fakeRunner) OpenOrigin(key string) error { return nil }
func (f *fakeRunner) CloseOrigin(key string) error { return nil }
func (f *fakeRunner) Done() <-chan struct{} { return f.done }
func (f *fakeRunner) Wait() engine.Summary {
	<-f.done
	return engine.Summary{Reason: engine.ReasonForced}
}

func (f *fakeRunner) recordedStops() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.stops...)
}

func TestRunWithSignals_SecondInterruptForces(t *testing.T) {
	runner := newFakeRunner()
	signals := make(chan os.Signal, 2)
	signals <- os.Interrupt
	signals <- os.Interrupt

	summary, err := cmd.RunWithSignals(context.Background(), runner, "", discardLogger(), signals)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Reason != engine.ReasonForced {
		t.Errorf("Expected reason %s, got %s", engine.ReasonForced, summary.Reason)
	}
	stops := runner.recordedStops()
	if len(stops) != 2 || stops[0] || !stops[1] {
		t.Errorf("Expected graceful then forced stop, got %v", stops)
	}
}

func TestRunWithSignals_StartFails(t *testing.T) {
	runner := newFakeRunner()
	runner.startErr = &engine.EngineError{Message: "job dir locked", Cause: engine.ErrCauseStartFailed}

	_, err := cmd.RunWithSignals(context.Background(), runner, "", discardLogger(), make(chan os.Signal))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) || engErr.Cause != engine.ErrCauseStartFailed {
		t.Errorf("Expected start failure, got: %v", err)
	}
}

func TestRunWithSignals_CrawlsSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body><main><h1>Home</h1><p>Welcome.</p><a href="/about">About</a></main></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>About</title></head><body><main><h1>About</h1><p>Nothing else here.</p></main></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	seed, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cfg, err := config.WithDefault([]url.URL{*seed}).
		WithObeyRobots(false).
		WithRandomizeDelay(false).
		WithDownloadTimeout(5 * time.Second).
		Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	eng, err := engine.NewEngineWithDeps(cfg, engine.Deps{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	summary, err := cmd.RunWithSignals(ctx, eng, "127.0.0.1:0", discardLogger(), make(chan os.Signal))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Reason != engine.ReasonFinished {
		t.Errorf("Expected reason %s, got %s", engine.ReasonFinished, summary.Reason)
	}
	if got := summary.Disposition(stats.Processed); got != 2 {
		t.Errorf("Expected 2 processed, got %d", got)
	}
	if !summary.Balanced() {
		t.Errorf("Expected balanced dispositions, got %v", summary.Stats)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		expectErr bool
		debugOn   bool
		contains  string
	}{
		{name: "defaults", contains: "msg=hello"},
		{name: "debug text", level: "debug", format: "text", debugOn: true, contains: "msg=hello"},
		{name: "json", level: "warn", format: "json", contains: `"msg":"hello"`},
		{name: "bad level", level: "loud", expectErr: true},
		{name: "bad format", format: "xml", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := cmd.NewLogger(tt.level, tt.format, &buf)
			if tt.expectErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if logger.Enabled(context.Background(), slog.LevelDebug) != tt.debugOn {
				t.Errorf("Expected debug enabled %t", tt.debugOn)
			}
			logger.Error("hello")
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("Expected output to contain %q, got %q", tt.contains, buf.String())
			}
		})
	}
}
