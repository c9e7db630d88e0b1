package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"variantcore/internal/telemetry"
)

const (
	// queueSize is the buffer size for the event queue
	queueSize = 1000

	// maxRetries is how many times a failed delivery is retried
	maxRetries = 3

	requestTimeout = 10 * time.Second
)

// Dispatcher queues events and delivers them to a single HTTP sink with
// bounded retries. A nil Dispatcher is valid and drops all events, so callers
// never have to branch on whether tracking is configured.
type Dispatcher struct {
	url    string
	secret string
	client *http.Client
	queue  chan Event
	done   chan struct{}
	closed int32
	log    zerolog.Logger
}

// NewDispatcher creates a dispatcher for the given sink URL. Returns nil when
// url is empty (tracking disabled).
func NewDispatcher(url, secret string, log zerolog.Logger) *Dispatcher {
	if url == "" {
		return nil
	}
	return &Dispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: requestTimeout},
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Start begins processing events from the queue.
func (d *Dispatcher) Start() {
	if d == nil {
		return
	}
	go d.worker()
}

// Close shuts the dispatcher down after draining pending events. Safe to call
// multiple times and on a nil Dispatcher.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	close(d.queue)
	<-d.done
	return nil
}

// Dispatch queues an event without blocking. Events are dropped when the
// queue is full or the dispatcher is disabled.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case d.queue <- event:
		telemetry.TrackingQueueDepth.Set(float64(len(d.queue)))
	default:
		d.log.Warn().
			Str("event", event.Type).
			Str("experiment", event.Experiment).
			Str("flag", event.FlagKey).
			Msg("tracking queue full, dropping event")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for event := range d.queue {
		telemetry.TrackingQueueDepth.Set(float64(len(d.queue)))
		d.deliverWithRetry(context.Background(), event)
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("event", event.Type).Msg("failed to marshal tracking payload")
		return
	}

	signature := ComputeHMAC(payload, d.secret)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		status, err := d.deliver(ctx, payload, signature, event)
		if err == nil && status >= 200 && status < 300 {
			d.log.Debug().
				Str("event", event.Type).
				Str("id", event.ID).
				Int("status", status).
				Msg("tracking event delivered")
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			d.log.Warn().
				Err(err).
				Str("event", event.Type).
				Int("status", status).
				Int("attempt", attempt+1).
				Dur("retry_in", backoff).
				Msg("tracking delivery failed, retrying")
			time.Sleep(backoff)
		} else {
			d.log.Error().
				Err(err).
				Str("event", event.Type).
				Int("status", status).
				Int("attempts", attempt+1).
				Msg("tracking delivery failed permanently")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, payload []byte, signature string, event Event) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Variantcore-Signature", signature)
	req.Header.Set("X-Variantcore-Event", event.Type)
	req.Header.Set("X-Variantcore-Delivery", event.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
