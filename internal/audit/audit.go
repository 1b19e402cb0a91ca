// Package audit records append-only audit entries for governance and webhook
// actions.
//
// Writers never talk to storage directly. They hand records to a Recorder
// (normally an Outbox), which delivers them to a Sink on a background
// goroutine. A failing or slow sink therefore never blocks or fails the
// operation that produced the record.
//
// Sinks:
//   - MemorySink: in-process append-only log, queryable through the API
//   - PostgresSink: governor_audit_log table via pgx
//   - RedisSink: capped Redis stream via XADD
//   - PubSubSink: Google Cloud Pub/Sub topic
//   - MultiSink: fan-out to several sinks
package audit

import (
	"context"
	"time"

	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/google/uuid"
)

// Sink persists audit records. It is the single write-only capability the
// governance and webhook components depend on.
type Sink interface {
	Insert(ctx context.Context, rec *models.AuditRecord) error
	Close() error
}

// Recorder accepts audit records for eventual persistence. Record must not
// block on storage and never reports persistence failures to the caller.
type Recorder interface {
	Record(ctx context.Context, rec *models.AuditRecord)
}

// NewRecord builds a successful audit record with a fresh id and timestamp.
func NewRecord(subjectID, action string, payload map[string]interface{}) *models.AuditRecord {
	return &models.AuditRecord{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Action:    action,
		Payload:   payload,
		Status:    models.AuditStatusSuccess,
		Timestamp: time.Now().UTC(),
	}
}

// Fail marks rec as an error record carrying err's message and returns it.
func Fail(rec *models.AuditRecord, err error) *models.AuditRecord {
	rec.Status = models.AuditStatusError
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	return rec
}

// ── Request context ─────────────────────────────────────────

type contextKey struct{}

// WithFields returns a context carrying fields that are copied into the
// Context map of every record recorded with it. Fields from outer contexts
// are preserved unless overridden.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	merged := make(map[string]interface{}, len(fields))
	for k, v := range FieldsFromContext(ctx) {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, contextKey{}, merged)
}

// FieldsFromContext returns the audit fields attached to ctx, or nil.
func FieldsFromContext(ctx context.Context) map[string]interface{} {
	if v, ok := ctx.Value(contextKey{}).(map[string]interface{}); ok {
		return v
	}
	return nil
}

// Discard is a Recorder that drops every record.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, *models.AuditRecord) {}
