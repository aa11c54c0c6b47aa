package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/sse"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func discardLogger() *slog.Logger {
	return NewLogger(io.Discard, slog.LevelError)
}

func TestOpenStoresLaysOutDataDir(t *testing.T) {
	cfg := testConfig(t)
	stores := OpenStores(cfg, discardLogger(), Hooks{})
	t.Cleanup(func() { _ = stores.Close() })

	if !stores.Transcripts.Available() || !stores.Tasks.Available() {
		t.Fatal("both databases should open")
	}
	if stores.Captures == nil {
		t.Fatal("capture index should open")
	}
	for _, name := range []string{"transcripts.db", "tasks.db", "captures"} {
		if _, err := os.Stat(filepath.Join(cfg.Storage.DataDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestOpenStoresHooks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	cfg := testConfig(t)
	stores := OpenStores(cfg, discardLogger(), Hooks{
		TranscriptSaved: func(models.TranscriptRecord) { record("transcript") },
		TodoChanged:     func(kind, _ string) { record("todo." + kind) },
		CaptureChanged:  func(kind string, _ models.Capture) { record("capture." + kind) },
	})
	t.Cleanup(func() { _ = stores.Close() })

	ctx := context.Background()
	if _, err := stores.Transcripts.Append(ctx, "hello there", 1.5, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := stores.Tasks.Insert(ctx, "write tests", models.PriorityHigh); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok := stores.Captures.RegisterURL("https://example.com", ""); !ok {
		t.Fatal("RegisterURL failed")
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{"transcript": true, "todo.created": true, "capture.registered": true}
	for _, e := range events {
		delete(want, e)
	}
	if len(want) != 0 {
		t.Errorf("missing events %v, got %v", want, events)
	}
}

func TestOpenStoresDegradesWhenDataDirBlocked(t *testing.T) {
	cfg := NewDefaultConfig()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Storage.DataDir = filepath.Join(blocker, "data")

	stores := OpenStores(cfg, discardLogger(), Hooks{})
	t.Cleanup(func() { _ = stores.Close() })

	if stores.Transcripts.Available() || stores.Tasks.Available() {
		t.Error("databases under a regular file should be unavailable")
	}
	if stores.Captures != nil {
		t.Error("capture index should be nil")
	}

	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)
	r := newRouter(cfg, stores, broker)

	for path, want := range map[string]int{
		"/health/live":             http.StatusOK,
		"/health/ready":            http.StatusServiceUnavailable,
		"/api/todos":               http.StatusServiceUnavailable,
		"/api/captures/unattached": http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestRouterHealthReady(t *testing.T) {
	cfg := testConfig(t)
	stores := OpenStores(cfg, discardLogger(), Hooks{})
	t.Cleanup(func() { _ = stores.Close() })

	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)
	r := newRouter(cfg, stores, broker)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %s", got)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
