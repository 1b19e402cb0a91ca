package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghlvoice/control-plane/internal/metrics"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrOutboxFull is reported when a record is dropped because the queue is full.
	ErrOutboxFull = errors.New("audit outbox full")
	// ErrOutboxClosed is reported when a record arrives after Close.
	ErrOutboxClosed = errors.New("audit outbox closed")
)

const insertTimeout = 5 * time.Second

// Outbox queues audit records in memory and writes them to a Sink from a
// single background worker, preserving enqueue order.
type Outbox struct {
	sink    Sink
	queue   chan *models.AuditRecord
	metrics *metrics.Metrics

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	done   chan struct{}
}

// NewOutbox starts an outbox draining into sink. size is the queue capacity.
func NewOutbox(sink Sink, size int, m *metrics.Metrics) *Outbox {
	if size <= 0 {
		size = 1024
	}
	if m == nil {
		m = metrics.New(nil)
	}
	o := &Outbox{
		sink:    sink,
		queue:   make(chan *models.AuditRecord, size),
		metrics: m,
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// Record enqueues rec without blocking. Fields attached to ctx with
// WithFields are merged into rec.Context. Dropped records are logged and
// counted.
func (o *Outbox) Record(ctx context.Context, rec *models.AuditRecord) {
	if err := o.Enqueue(ctx, rec); err != nil {
		o.metrics.AuditDropped.Inc()
		log.Warn().Err(err).
			Str("subject", rec.SubjectID).
			Str("action", rec.Action).
			Msg("Audit record dropped")
	}
}

// Enqueue is Record with the drop reason reported to the caller.
func (o *Outbox) Enqueue(ctx context.Context, rec *models.AuditRecord) error {
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		if rec.Context == nil {
			rec.Context = make(map[string]interface{}, len(fields))
		}
		for k, v := range fields {
			if _, set := rec.Context[k]; !set {
				rec.Context[k] = v
			}
		}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- rec:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Pending returns the number of records waiting to be written.
func (o *Outbox) Pending() int {
	return len(o.queue)
}

// Close stops accepting records, waits for queued records to be written,
// then closes the sink.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	<-o.done
	log.Info().Msg("Audit outbox drained")
	return o.sink.Close()
}

func (o *Outbox) run() {
	defer close(o.done)
	for rec := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err := o.sink.Insert(ctx, rec)
		cancel()
		if err != nil {
			o.metrics.AuditFailed.Inc()
			log.Error().Err(err).
				Str("id", rec.ID).
				Str("subject", rec.SubjectID).
				Str("action", rec.Action).
				Msg("Audit sink insert failed")
			continue
		}
		o.metrics.AuditWritten.Inc()
	}
}
