package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/internal/retention"
	"github.com/ghlvoice/control-plane/pkg/models"
)

func insertAt(t *testing.T, sink *audit.MemorySink, subject string, ts time.Time) {
	t.Helper()
	rec := audit.NewRecord(subject, "governance.evaluation", nil)
	rec.Timestamp = ts
	if err := sink.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func TestRunCyclePurgesExpired(t *testing.T) {
	sink := audit.NewMemorySink()
	now := time.Now().UTC()
	insertAt(t, sink, "old-1", now.Add(-3*time.Hour))
	insertAt(t, sink, "fresh", now.Add(-10*time.Minute))
	insertAt(t, sink, "old-2", now.Add(-2*time.Hour))

	j := retention.NewJanitor(sink, time.Hour, time.Hour, nil)
	stats := j.RunCycle()

	if stats.Purged != 2 {
		t.Errorf("Purged = %d, want 2", stats.Purged)
	}
	if stats.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", stats.Remaining)
	}
	recs := sink.List(models.AuditFilter{})
	if len(recs) != 1 || recs[0].SubjectID != "fresh" {
		t.Errorf("remaining records = %+v, want only fresh", recs)
	}
}

func TestRunCycleNothingExpired(t *testing.T) {
	sink := audit.NewMemorySink()
	insertAt(t, sink, "a", time.Now().UTC())

	stats := retention.NewJanitor(sink, 0, 0, nil).RunCycle()
	if stats.Purged != 0 || stats.Remaining != 1 {
		t.Errorf("stats = %+v, want nothing purged", stats)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	sink := audit.NewMemorySink()
	insertAt(t, sink, "old", time.Now().UTC().Add(-48*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		retention.NewJanitor(sink, time.Hour, time.Hour, nil).Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
	if sink.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the startup sweep", sink.Len())
	}
}
