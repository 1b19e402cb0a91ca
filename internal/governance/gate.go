package governance

import (
	"context"
	"strconv"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

// EnsureAgentGovernance creates the default state (confidence 100, not gated)
// for agentID if it does not exist yet.
func (s *Store) EnsureAgentGovernance(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureGovernanceLocked(agentID)
}

func (s *Store) ensureGovernanceLocked(agentID string) *models.AgentGovernanceState {
	g, ok := s.governance[agentID]
	if !ok {
		g = &models.AgentGovernanceState{
			AgentID:           agentID,
			ConfidenceScore:   models.DefaultConfidenceScore,
			EvaluationHistory: make([]models.Evaluation, 0),
			UpdatedAt:         s.now(),
		}
		s.governance[agentID] = g
	}
	return g
}

// RecordAgentEvaluation appends an evaluation and recomputes the gate: the
// agent is gated when score is below the threshold. It never fails; callers
// are expected to pass scores in the 0-100 range.
func (s *Store) RecordAgentEvaluation(ctx context.Context, agentID string, score float64, evaluationID string) models.GateStatus {
	s.mu.Lock()
	g := s.ensureGovernanceLocked(agentID)
	now := s.now()
	g.EvaluationHistory = append(g.EvaluationHistory, models.Evaluation{
		Score:        score,
		EvaluationID: evaluationID,
		Timestamp:    now,
	})
	g.ConfidenceScore = score
	g.IsGated = score < s.threshold
	if g.IsGated {
		g.GateReason = "Confidence below threshold: " + strconv.FormatFloat(score, 'f', -1, 64)
	} else {
		g.GateReason = ""
	}
	g.UpdatedAt = now
	status := models.GateStatus{IsGated: g.IsGated, Reason: g.GateReason}
	s.mu.Unlock()

	s.metrics.ConfidenceScore.WithLabelValues(agentID).Set(score)
	if status.IsGated {
		s.metrics.AgentGated.WithLabelValues(agentID).Set(1)
		s.metrics.Evaluations.WithLabelValues("gated").Inc()
		log.Warn().Str("agent", agentID).Float64("score", score).Str("evaluation", evaluationID).Msg("Agent gated")
	} else {
		s.metrics.AgentGated.WithLabelValues(agentID).Set(0)
		s.metrics.Evaluations.WithLabelValues("open").Inc()
	}

	s.recorder.Record(ctx, audit.NewRecord(agentID, "governance.evaluation", map[string]interface{}{
		"score":         score,
		"evaluation_id": evaluationID,
		"is_gated":      status.IsGated,
		"threshold":     s.threshold,
	}))
	return status
}

// CheckAgentGate returns the current gate status. Unknown agents are not gated.
func (s *Store) CheckAgentGate(agentID string) models.GateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.governance[agentID]
	if !ok {
		return models.GateStatus{}
	}
	return models.GateStatus{IsGated: g.IsGated, Reason: g.GateReason}
}
