package governance

import (
	"context"
	"math"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/pkg/models"
)

// DefaultInvocationSource tags invocations recorded without a source.
const DefaultInvocationSource = "live"

// InvocationMetrics describes one agent invocation to record.
type InvocationMetrics struct {
	Tokens         int64
	CostUSD        float64
	LatencyMs      int64
	Source         string
	ConversationID string
}

// RecordInvocationMetrics appends an invocation event and adds its tokens
// and cost to the agent's running totals.
func (s *Store) RecordInvocationMetrics(ctx context.Context, agentID string, m InvocationMetrics) models.InvocationEvent {
	if m.Source == "" {
		m.Source = DefaultInvocationSource
	}
	event := models.InvocationEvent{
		Tokens:         m.Tokens,
		CostUSD:        m.CostUSD,
		LatencyMs:      m.LatencyMs,
		Source:         m.Source,
		ConversationID: m.ConversationID,
		Timestamp:      s.now(),
	}

	s.mu.Lock()
	o, ok := s.observability[agentID]
	if !ok {
		o = &models.ObservabilityMetrics{AgentID: agentID, Events: make([]models.InvocationEvent, 0)}
		s.observability[agentID] = o
	}
	o.Events = append(o.Events, event)
	o.TotalTokens = addSaturating(o.TotalTokens, m.Tokens)
	o.TotalCostUSD += m.CostUSD
	s.mu.Unlock()

	if m.CostUSD > 0 {
		s.metrics.InvocationCost.WithLabelValues(m.Source).Add(m.CostUSD)
	}
	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.invocation", map[string]interface{}{
		"tokens":          m.Tokens,
		"cost_usd":        m.CostUSD,
		"latency_ms":      m.LatencyMs,
		"source":          m.Source,
		"conversation_id": m.ConversationID,
	}))
	return event
}

// addSaturating adds two non-negative counters, clamping at MaxInt64.
func addSaturating(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}
