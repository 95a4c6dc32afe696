package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/agentlink/internal/connection"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(Config{Namespace: "agentlink"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestRegistry_Recording(t *testing.T) {
	r := newTestRegistry(t)

	r.SetState(connection.Connected)
	if got := testutil.ToFloat64(r.stateGauge); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
	if r.State() != connection.Connected {
		t.Errorf("State() = %v, want connected", r.State())
	}

	r.ReconnectScheduled(1, 2*time.Second)
	r.ReconnectScheduled(2, 3*time.Second)
	if got := testutil.ToFloat64(r.reconnects); got != 2 {
		t.Errorf("reconnects = %v, want 2", got)
	}

	r.MessageReceived(false)
	r.MessageReceived(false)
	r.MessageReceived(true)
	if got := testutil.ToFloat64(r.received.WithLabelValues("json")); got != 2 {
		t.Errorf("json messages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.received.WithLabelValues("raw")); got != 1 {
		t.Errorf("raw messages = %v, want 1", got)
	}

	r.MessageSent()
	if got := testutil.ToFloat64(r.sent); got != 1 {
		t.Errorf("sent = %v, want 1", got)
	}

	r.CallbackPanicked("message")
	if got := testutil.ToFloat64(r.panics.WithLabelValues("message")); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}

	if n := testutil.CollectAndCount(r.reconnectDelay); n != 1 {
		t.Errorf("reconnect delay histograms = %d, want 1", n)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := New(Config{Namespace: "dup", Registerer: reg}); err != nil {
		t.Fatalf("first New failed: %v", err)
	}
	if _, err := New(Config{Namespace: "dup", Registerer: reg}); err == nil {
		t.Error("expected error registering the same metrics twice")
	}
}

func TestHandler(t *testing.T) {
	r := newTestRegistry(t)
	r.MessageSent()

	server := httptest.NewServer(r.Handler("/metrics"))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body := new(strings.Builder)
	if _, err := io.Copy(body, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(body.String(), "agentlink_messages_sent_total 1") {
		t.Errorf("metrics output missing sent counter:\n%s", body.String())
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state      connection.State
		wantStatus int
	}{
		{connection.Connected, http.StatusOK},
		{connection.Connecting, http.StatusServiceUnavailable},
		{connection.Disconnected, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			r := newTestRegistry(t)
			r.SetState(tt.state)

			rec := httptest.NewRecorder()
			r.Handler("/metrics").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["state"] != tt.state.String() {
				t.Errorf("state = %q, want %q", body["state"], tt.state.String())
			}
		})
	}
}
