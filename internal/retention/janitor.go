// Package retention periodically purges expired audit records from the
// in-memory audit sink. Durable sinks (Postgres, Redis streams, Pub/Sub)
// manage their own retention and are not touched.
//
// The janitor runs as a background goroutine and stops when its context is
// canceled.
package retention

import (
	"context"
	"time"

	"github.com/ghlvoice/control-plane/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultRetention is how long audit records are kept when unset.
const DefaultRetention = 30 * 24 * time.Hour

// Purger removes records older than a cutoff.
type Purger interface {
	Purge(before time.Time) int
	Len() int
}

// CycleStats describes a single retention sweep.
type CycleStats struct {
	Cutoff    time.Time
	Purged    int
	Remaining int
	Elapsed   time.Duration
}

// Janitor purges expired audit records on a fixed interval.
type Janitor struct {
	target    Purger
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewJanitor creates a janitor that keeps records for retention and sweeps
// every interval. Intervals under a minute are raised to an hour.
func NewJanitor(target Purger, retention, interval time.Duration, m *metrics.Metrics) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval < time.Minute {
		interval = time.Hour
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Janitor{
		target:    target,
		retention: retention,
		interval:  interval,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the janitor until ctx is canceled. It sweeps once immediately.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("retention", j.retention).
		Msg("Audit retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Audit retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle()
		}
	}
}

// RunCycle performs one sweep.
func (j *Janitor) RunCycle() CycleStats {
	start := time.Now()
	stats := CycleStats{Cutoff: j.now().Add(-j.retention)}

	stats.Purged = j.target.Purge(stats.Cutoff)
	stats.Remaining = j.target.Len()
	stats.Elapsed = time.Since(start)

	if stats.Purged > 0 {
		j.metrics.AuditPurged.Add(float64(stats.Purged))
		log.Info().
			Int("purged", stats.Purged).
			Int("remaining", stats.Remaining).
			Time("cutoff", stats.Cutoff).
			Dur("elapsed", stats.Elapsed).
			Msg("Audit retention cycle complete")
	}
	return stats
}
