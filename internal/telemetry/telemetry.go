// Package telemetry implements the "fire-and-forget" analytics reframing
// analytics calls: events are enqueued on a bounded channel drained by one
// background goroutine; producers never block, and events are dropped on
// overflow rather than applying backpressure.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kaanreal/companella/internal/logevent"
)

// Event is one analytics event. Schema beyond Name/Fields is owned by the
// telemetry vendor, not this core.
type Event struct {
	Name   string
	Fields map[string]interface{}
}

const queueCapacity = 256

// Queue enqueues events for asynchronous HTTPS delivery. The zero value is
// not usable; construct with NewQueue.
type Queue struct {
	events   chan Event
	endpoint string
	client   *http.Client
	log      *logevent.Logger
}

// NewQueue builds a Queue; the caller starts its single drain goroutine by
// running Run. endpoint is the telemetry vendor's HTTPS collection URL; an
// empty endpoint makes Run a no-op sink (events are still accepted and
// discarded, matching "send_analytics: bool" being off in SettingsFile).
func NewQueue(endpoint string, log *logevent.Logger) *Queue {
	q := &Queue{
		events:   make(chan Event, queueCapacity),
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second}, // same budget as the update check
		log:      log,
	}
	return q
}

// Enqueue posts an event without blocking. If the queue is full the event
// is dropped and the drop is logged at INFO.
func (q *Queue) Enqueue(event Event) {
	select {
	case q.events <- event:
	default:
		q.log.Info("telemetry queue full, dropping event %s", event.Name)
	}
}

// Run drains the queue, batching events into periodic POSTs, until ctx is
// canceled. Call this once from a single background goroutine.
func (q *Queue) Run(ctx context.Context) {
	const flushInterval = 30 * time.Second
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []Event
	flush := func() {
		if len(batch) == 0 || q.endpoint == "" {
			batch = batch[:0]
			return
		}
		if err := q.post(ctx, batch); err != nil {
			q.log.Info("telemetry flush failed: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case event := <-q.events:
			batch = append(batch, event)
			if len(batch) >= queueCapacity/4 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (q *Queue) post(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
