// Package webhook is an in-process event multiplexer. Handlers subscribe to
// an exact event type or to every event via "*"; ProcessEvent fans an event
// out to all matching handlers and reports a per-handler outcome.
//
// Handlers registered for the same event run sequentially in registration
// order. A handler that returns an error or panics produces an error entry
// but never stops delivery to the others.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr/vm"
	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/internal/metrics"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one event's data. The returned value is reported as the
// dispatch result.
type Handler func(ctx context.Context, data map[string]interface{}) (interface{}, error)

// Subscription is a request to register a handler.
type Subscription struct {
	EventType string
	Handler   Handler
	Options   models.HandlerOptions
}

var (
	ErrEventTypeRequired = errors.New("event type is required")
	ErrHandlerRequired   = errors.New("handler is required")
)

type registration struct {
	models.HandlerRegistration
	handler   Handler
	condition *vm.Program
}

func (r *registration) matches(eventType string) bool {
	return r.EventType == eventType || r.EventType == models.WildcardEventType
}

// Dispatcher owns the handler registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]*registration // key: handler id
	order    []string                 // handler ids in registration order

	recorder audit.Recorder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder sets where audit records are sent.
func WithRecorder(r audit.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]*registration),
		recorder: audit.Discard,
		tracer:   otel.Tracer("ghl-voice-governor/webhook"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.New(nil)
	}
	return d
}

// OnEvent registers a handler and returns its generated id.
func (d *Dispatcher) OnEvent(ctx context.Context, sub Subscription) (models.RegistrationResult, error) {
	eventType := strings.TrimSpace(sub.EventType)
	if eventType == "" {
		return models.RegistrationResult{}, ErrEventTypeRequired
	}
	if sub.Handler == nil {
		return models.RegistrationResult{}, ErrHandlerRequired
	}
	program, err := compileCondition(sub.Options.Condition)
	if err != nil {
		return models.RegistrationResult{}, err
	}

	reg := &registration{
		HandlerRegistration: models.HandlerRegistration{
			HandlerID:    newHandlerID(d.now()),
			EventType:    eventType,
			Options:      sub.Options,
			RegisteredAt: d.now(),
		},
		handler:   sub.Handler,
		condition: program,
	}

	d.mu.Lock()
	d.handlers[reg.HandlerID] = reg
	d.order = append(d.order, reg.HandlerID)
	count := len(d.handlers)
	d.mu.Unlock()

	d.metrics.HandlersRegistered.Set(float64(count))
	log.Info().Str("handler", reg.HandlerID).Str("event_type", eventType).Msg("Webhook handler registered")

	d.recorder.Record(ctx, audit.NewRecord(reg.HandlerID, "webhook.register", map[string]interface{}{
		"event_type":  eventType,
		"description": sub.Options.Description,
		"condition":   sub.Options.Condition,
	}))

	return models.RegistrationResult{
		HandlerID:    reg.HandlerID,
		Status:       models.HandlerStatusRegistered,
		EventType:    eventType,
		RegisteredAt: reg.RegisteredAt,
	}, nil
}

// ProcessEvent invokes every handler registered for eventType or "*".
// The set of handlers is fixed when the call starts: registrations and
// removals made while it runs do not affect it. Handlers whose condition
// evaluates to false are skipped and produce no result.
func (d *Dispatcher) ProcessEvent(ctx context.Context, eventType string, data map[string]interface{}) []models.DispatchResult {
	targets := d.snapshot(eventType)
	results := make([]models.DispatchResult, 0, len(targets))
	ctx = withEventType(ctx, eventType)

	for _, reg := range targets {
		ok, err := evalCondition(reg.condition, eventType, data)
		if err != nil {
			results = append(results, d.finish(ctx, reg, eventType, nil, fmt.Errorf("condition: %w", err), 0))
			continue
		}
		if !ok {
			continue
		}

		start := time.Now()
		result, err := d.invoke(ctx, reg, eventType, data)
		results = append(results, d.finish(ctx, reg, eventType, result, err, time.Since(start)))
	}

	log.Debug().Str("event_type", eventType).Int("handlers", len(results)).Msg("Event processed")
	return results
}

// RemoveHandler unregisters handlerID. Unknown ids report not_found.
func (d *Dispatcher) RemoveHandler(ctx context.Context, handlerID string) models.RemoveResult {
	d.mu.Lock()
	reg, ok := d.handlers[handlerID]
	if ok {
		delete(d.handlers, handlerID)
		for i, id := range d.order {
			if id == handlerID {
				d.order = append(d.order[:i:i], d.order[i+1:]...)
				break
			}
		}
	}
	count := len(d.handlers)
	d.mu.Unlock()

	if !ok {
		return models.RemoveResult{Status: models.HandlerStatusNotFound, HandlerID: handlerID}
	}

	d.metrics.HandlersRegistered.Set(float64(count))
	log.Info().Str("handler", handlerID).Str("event_type", reg.EventType).Msg("Webhook handler removed")
	d.recorder.Record(ctx, audit.NewRecord(handlerID, "webhook.remove", map[string]interface{}{
		"event_type": reg.EventType,
	}))
	return models.RemoveResult{Status: models.HandlerStatusRemoved, HandlerID: handlerID}
}

// Get returns the registration for handlerID.
func (d *Dispatcher) Get(handlerID string) (models.HandlerRegistration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reg, ok := d.handlers[handlerID]
	if !ok {
		return models.HandlerRegistration{}, false
	}
	return reg.HandlerRegistration, true
}

// Count returns the number of registered handlers.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

func (d *Dispatcher) snapshot(eventType string) []*registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*registration
	for _, id := range d.order {
		if reg := d.handlers[id]; reg.matches(eventType) {
			out = append(out, reg)
		}
	}
	return out
}

// invoke runs one handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, reg *registration, eventType string, data map[string]interface{}) (result interface{}, err error) {
	ctx, span := d.tracer.Start(ctx, "webhook.handler",
		trace.WithAttributes(
			attribute.String("webhook.handler_id", reg.HandlerID),
			attribute.String("webhook.event_type", eventType),
		),
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return reg.handler(ctx, data)
}

func (d *Dispatcher) finish(ctx context.Context, reg *registration, eventType string, result interface{}, err error, took time.Duration) models.DispatchResult {
	out := models.DispatchResult{HandlerID: reg.HandlerID}
	rec := audit.NewRecord(reg.HandlerID, "webhook.dispatch", map[string]interface{}{
		"event_type":  eventType,
		"duration_ms": took.Milliseconds(),
	})

	if err != nil {
		out.Status = models.DispatchStatusError
		out.Error = err.Error()
		audit.Fail(rec, err)
		log.Warn().Err(err).Str("handler", reg.HandlerID).Str("event_type", eventType).Msg("Webhook handler failed")
	} else {
		out.Status = models.DispatchStatusSuccess
		out.Result = result
	}

	// Label by the subscribed type, not the incoming one: incoming types come
	// from request bodies, subscribed types are bounded by the handler set.
	d.metrics.Dispatches.WithLabelValues(reg.EventType, out.Status).Inc()
	d.metrics.DispatchDuration.WithLabelValues(reg.EventType).Observe(took.Seconds())
	d.recorder.Record(ctx, rec)
	return out
}

// newHandlerID returns a time-ordered id with a random suffix, unique within
// a process.
func newHandlerID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("wh_%d_%s", now.UnixMilli(), suffix)
}

// ── Event type on context ───────────────────────────────────

type eventTypeKey struct{}

func withEventType(ctx context.Context, eventType string) context.Context {
	return context.WithValue(ctx, eventTypeKey{}, eventType)
}

// EventTypeFromContext returns the event type being dispatched, for handlers
// subscribed to "*" that need to know which event they received.
func EventTypeFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(eventTypeKey{}).(string); ok {
		return v
	}
	return ""
}
