package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

// EventStream is the single topic all reservation lifecycle events land on;
// consumers fan out on the envelope type.
const EventStream = "reservations.events.v1"

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Queue is the claim side of the outbox store.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

// Worker drains the reservation outbox and publishes each record as a
// CloudEvents envelope on the reservation event stream. Publication is
// at-least-once: a failed publish reschedules the record with backoff, and
// redeliveries reuse the stored record id so consumers can dedupe.
type Worker struct {
	Store       Queue
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				return err
			}
		}
	}
}

// drain claims records until the store runs dry, so a burst of lifecycle
// transitions does not pay one poll interval per event.
func (w *Worker) drain(ctx context.Context) error {
	for {
		doc, err := w.Store.Claim(ctx, w.workerID())
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		if err := w.dispatch(ctx, doc); err != nil {
			return err
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, doc *EventDocument) error {
	payload, err := w.envelope(doc)
	if err != nil {
		return w.Store.MarkFailed(ctx, doc.ID, w.nextAttempt(doc.Attempts), err.Error())
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	for k, v := range doc.Headers {
		headers[k] = v
	}
	if err := w.Producer.Publish(ctx, w.topic(), doc.Aggregate, payload, headers); err != nil {
		return w.Store.MarkFailed(ctx, doc.ID, w.nextAttempt(doc.Attempts), err.Error())
	}
	return w.Store.MarkSent(ctx, doc.ID)
}

// envelope wraps the stored payload as a CloudEvent. The type is the domain
// event name ("reservation.confirmed" and friends) and the subject is the
// reservation id, so consumers route without decoding the data.
func (w *Worker) envelope(doc *EventDocument) ([]byte, error) {
	var data json.RawMessage
	if err := json.Unmarshal(doc.Payload, &data); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"specversion":     "1.0",
		"id":              doc.ID,
		"type":            doc.Name,
		"source":          w.source(),
		"subject":         doc.Aggregate,
		"time":            doc.OccurredAt.UTC().Format(time.RFC3339Nano),
		"datacontenttype": "application/json",
		"data":            data,
	})
}

func (w *Worker) topic() string {
	return w.TopicPrefix + EventStream
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextAttempt(attempts int) time.Time {
	if len(w.Backoff) == 0 {
		return time.Now().Add(5 * time.Second)
	}
	if attempts >= len(w.Backoff) {
		attempts = len(w.Backoff) - 1
	}
	return time.Now().Add(w.Backoff[attempts])
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://gearshare"
}
