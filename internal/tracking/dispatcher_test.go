package tracking

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type captured struct {
	mu       sync.Mutex
	payloads [][]byte
	headers  []http.Header
}

func (c *captured) handler(status func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.payloads = append(c.payloads, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status())
	}
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestDispatcherDelivers(t *testing.T) {
	var sink captured
	srv := httptest.NewServer(sink.handler(func() int { return http.StatusOK }))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "test-secret", zerolog.Nop())
	d.Start()

	d.Dispatch(Event{
		Type:        EventExperimentAssigned,
		Environment: "production",
		Experiment:  "exp-1",
		VariantID:   "control",
		Identity:    "user-1",
	})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.count())
	}

	var event Event
	if err := json.Unmarshal(sink.payloads[0], &event); err != nil {
		t.Fatalf("unmarshal delivered payload: %v", err)
	}
	if event.Type != EventExperimentAssigned || event.Experiment != "exp-1" {
		t.Errorf("unexpected payload: %+v", event)
	}
	if event.ID == "" {
		t.Error("dispatcher should assign an event id")
	}
	if event.Timestamp.IsZero() {
		t.Error("dispatcher should stamp the event")
	}

	h := sink.headers[0]
	sig := h.Get("X-Variantcore-Signature")
	if !VerifySignature(sink.payloads[0], sig, "test-secret") {
		t.Errorf("delivered signature does not verify: %q", sig)
	}
	if h.Get("X-Variantcore-Event") != EventExperimentAssigned {
		t.Errorf("event header = %q", h.Get("X-Variantcore-Event"))
	}
	if h.Get("X-Variantcore-Delivery") != event.ID {
		t.Errorf("delivery header = %q, want %q", h.Get("X-Variantcore-Delivery"), event.ID)
	}
}

func TestDispatcherRetriesOnFailure(t *testing.T) {
	var sink captured
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(sink.handler(func() int {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "test-secret", zerolog.Nop())
	d.Start()
	d.Dispatch(Event{Type: EventFlagEvaluated, FlagKey: "beta"})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if sink.count() != 2 {
		t.Fatalf("expected 2 attempts (1 failure + 1 retry), got %d", sink.count())
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Start()
	d.Dispatch(Event{Type: EventFlagEvaluated})
	if err := d.Close(); err != nil {
		t.Fatalf("Close on nil dispatcher: %v", err)
	}
}

func TestNewDispatcherEmptyURLDisabled(t *testing.T) {
	if d := NewDispatcher("", "secret", zerolog.Nop()); d != nil {
		t.Error("empty URL should disable the dispatcher")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "s", zerolog.Nop())
	d.Start()
	if err := d.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
