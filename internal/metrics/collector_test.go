package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector()

	if collector == nil {
		t.Fatal("NewCollector() returned nil")
	}
	if got := testutil.ToFloat64(collector.renders); got != 0 {
		t.Errorf("initial renders = %v, want 0", got)
	}
}

func TestRenderMetrics(t *testing.T) {
	collector := NewCollector()

	collector.ObserveRender(3*time.Millisecond, nil)
	collector.ObserveRender(0, errors.New("boom"))

	if got := testutil.ToFloat64(collector.renders); got != 2 {
		t.Errorf("renders = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.renderErrors); got != 1 {
		t.Errorf("render errors = %v, want 1", got)
	}
}

func TestEditAndUploadMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementEdit("text")
	collector.IncrementEdit("text")
	collector.IncrementEdit("button")
	collector.ObserveUpload("ok", 200<<10)
	collector.ObserveUpload("invalid", 6<<20)

	if got := testutil.ToFloat64(collector.edits.WithLabelValues("text")); got != 2 {
		t.Errorf("text edits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.uploads.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid uploads = %v, want 1", got)
	}
}

func TestSessionMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementSessionCreated()
	collector.IncrementSessionCreated()
	collector.IncrementSessionCreated()
	collector.IncrementSessionDestroyed()

	if got := testutil.ToFloat64(collector.activeSessions); got != 2 {
		t.Errorf("active sessions = %v, want 2", got)
	}
	if got := collector.MaxConcurrentSessions(); got != 3 {
		t.Errorf("max concurrent sessions = %d, want 3", got)
	}
}

func TestNilCollector(t *testing.T) {
	var collector *Collector
	collector.ObserveRender(time.Millisecond, nil)
	collector.IncrementEdit("image")
	collector.ObserveUpload("ok", 1)
	collector.IncrementSessionCreated()
	collector.ConnectionOpened()
	if collector.MaxConcurrentSessions() != 0 {
		t.Error("nil collector reported sessions")
	}
}

func TestHandler(t *testing.T) {
	collector := NewCollector()
	collector.IncrementEdit("image")
	collector.ConnectionOpened()

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`editpreview_edits_committed_total{kind="image"} 1`,
		"editpreview_websocket_connections 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
