package governance

import (
	"context"
	"math"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

// SetTokenBudget sets agentID's limit and resets its consumption and cache hits.
func (s *Store) SetTokenBudget(ctx context.Context, agentID string, limit int64) (models.TokenBudget, error) {
	if limit < 0 {
		return models.TokenBudget{}, ErrInvalidAmount
	}
	s.mu.Lock()
	b := &models.TokenBudget{AgentID: agentID, Limit: limit, UpdatedAt: s.now()}
	s.budgets[agentID] = b
	snapshot := *b
	s.mu.Unlock()

	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.budget.set", map[string]interface{}{
		"limit": limit,
	}))
	return snapshot, nil
}

// EnsureTokenBudget creates a budget with the given limit if agentID has
// none. A non-positive limit uses the store default. An existing budget is
// returned unchanged.
func (s *Store) EnsureTokenBudget(agentID string, limit int64) models.TokenBudget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureBudgetLocked(agentID, limit)
}

func (s *Store) ensureBudgetLocked(agentID string, limit int64) *models.TokenBudget {
	b, ok := s.budgets[agentID]
	if !ok {
		if limit <= 0 {
			limit = s.defaultBudget
		}
		b = &models.TokenBudget{AgentID: agentID, Limit: limit, UpdatedAt: s.now()}
		s.budgets[agentID] = b
	}
	return b
}

// CheckTokenBudget reports whether amount more tokens would fit in the
// agent's budget. Remaining is computed before amount is applied. It does
// not deduct anything. An agent without a budget is checked against the
// default limit without creating one.
func (s *Store) CheckTokenBudget(agentID string, amount int64) models.BudgetCheck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[agentID]
	if !ok {
		return models.BudgetCheck{
			Allowed:   amount <= s.defaultBudget,
			Remaining: s.defaultBudget,
		}
	}
	return check(b, amount)
}

// check compares against Remaining rather than summing, so amounts near
// MaxInt64 cannot wrap. Limit and Consumed are never negative, so Remaining
// itself cannot overflow.
func check(b *models.TokenBudget, amount int64) models.BudgetCheck {
	remaining := b.Remaining()
	return models.BudgetCheck{
		Allowed:   amount <= remaining,
		Remaining: remaining,
	}
}

// ConsumeTokenBudget unconditionally adds amount to the agent's consumption.
// Consumption may exceed the limit but never wraps: an amount that would
// overflow the counter is rejected with ErrAmountOverflow. A missing budget
// is created with the default limit first.
//
// Pairing CheckTokenBudget with ConsumeTokenBudget is not atomic; use
// TryConsume to admit and deduct in one step.
func (s *Store) ConsumeTokenBudget(ctx context.Context, agentID string, amount int64) (models.TokenBudget, error) {
	if amount < 0 {
		return models.TokenBudget{}, ErrInvalidAmount
	}
	s.mu.Lock()
	b := s.ensureBudgetLocked(agentID, 0)
	if amount > math.MaxInt64-b.Consumed {
		s.mu.Unlock()
		return models.TokenBudget{}, ErrAmountOverflow
	}
	b.Consumed += amount
	b.UpdatedAt = s.now()
	snapshot := *b
	s.mu.Unlock()

	s.metrics.TokensConsumed.WithLabelValues(agentID).Add(float64(amount))
	if snapshot.Consumed > snapshot.Limit {
		log.Warn().Str("agent", agentID).Int64("consumed", snapshot.Consumed).Int64("limit", snapshot.Limit).Msg("Token budget overshot")
	}

	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.budget.consume", map[string]interface{}{
		"amount":   amount,
		"consumed": snapshot.Consumed,
		"limit":    snapshot.Limit,
	}))
	return snapshot, nil
}

// TryConsume atomically checks and deducts amount. The deduction only happens
// when the amount fits; the returned check reflects the state before it.
// A missing budget is created with the default limit first.
func (s *Store) TryConsume(ctx context.Context, agentID string, amount int64) (models.BudgetCheck, error) {
	if amount < 0 {
		return models.BudgetCheck{}, ErrInvalidAmount
	}
	s.mu.Lock()
	b := s.ensureBudgetLocked(agentID, 0)
	result := check(b, amount)
	if result.Allowed {
		b.Consumed += amount
		b.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	// A denial is a completed operation, not a failure: the record stays
	// successful and the outcome lives in the payload.
	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.budget.reserve", map[string]interface{}{
		"amount":    amount,
		"allowed":   result.Allowed,
		"remaining": result.Remaining,
	}))
	if result.Allowed {
		s.metrics.Reservations.WithLabelValues("allowed").Inc()
		s.metrics.TokensConsumed.WithLabelValues(agentID).Add(float64(amount))
	} else {
		s.metrics.Reservations.WithLabelValues("denied").Inc()
		log.Info().Str("agent", agentID).Int64("amount", amount).Int64("remaining", result.Remaining).Msg("Token reservation denied")
	}
	return result, nil
}

// RecordCacheHit increments the budget's cache hit counter. It does not
// touch consumption. The budget must already exist.
func (s *Store) RecordCacheHit(ctx context.Context, agentID string) (int64, error) {
	s.mu.Lock()
	b, ok := s.budgets[agentID]
	if !ok {
		s.mu.Unlock()
		return 0, ErrBudgetNotFound
	}
	b.CacheHits++
	hits := b.CacheHits
	s.mu.Unlock()

	s.metrics.CacheHits.WithLabelValues(agentID).Inc()
	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.cache_hit", map[string]interface{}{
		"cache_hits": hits,
	}))
	return hits, nil
}
