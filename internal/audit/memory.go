package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ghlvoice/control-plane/pkg/models"
)

// MemorySink keeps audit records in an append-only slice.
type MemorySink struct {
	mu      sync.RWMutex
	records []*models.AuditRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make([]*models.AuditRecord, 0)}
}

func (m *MemorySink) Insert(_ context.Context, rec *models.AuditRecord) error {
	cp := *rec
	m.mu.Lock()
	m.records = append(m.records, &cp)
	m.mu.Unlock()
	return nil
}

// List returns records matching filter, newest first.
func (m *MemorySink) List(filter models.AuditFilter) []models.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.AuditRecord
	offset := filter.Offset
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if !matches(r, filter) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		result = append(result, *r)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Count returns the number of records matching filter, ignoring Limit and Offset.
func (m *MemorySink) Count(filter models.AuditFilter) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if matches(r, filter) {
			n++
		}
	}
	return n
}

// Purge deletes records older than before and returns how many were removed.
func (m *MemorySink) Purge(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]*models.AuditRecord, 0, len(m.records))
	for _, r := range m.records {
		if !r.Timestamp.Before(before) {
			kept = append(kept, r)
		}
	}
	purged := len(m.records) - len(kept)
	if purged > 0 {
		m.records = kept
	}
	return purged
}

// Len returns the number of records held.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemorySink) Close() error { return nil }

func matches(r *models.AuditRecord, f models.AuditFilter) bool {
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
