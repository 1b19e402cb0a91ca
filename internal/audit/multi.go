package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghlvoice/control-plane/pkg/models"
)

// MultiSink writes every record to all of its sinks. A failing sink does not
// stop delivery to the others; their errors are joined.
type MultiSink struct {
	sinks []Sink
	names []string
}

// NewMultiSink creates an empty fan-out sink.
func NewMultiSink() *MultiSink {
	return &MultiSink{}
}

// Add appends a named sink.
func (m *MultiSink) Add(name string, s Sink) {
	m.sinks = append(m.sinks, s)
	m.names = append(m.names, name)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Insert(ctx context.Context, rec *models.AuditRecord) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Insert(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}
