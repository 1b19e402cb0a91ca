package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ghlvoice/control-plane/internal/governance"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type evaluationRequest struct {
	Score        *float64 `json:"score"`
	EvaluationID string   `json:"evaluation_id"`
}

type budgetRequest struct {
	Limit int64 `json:"limit"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type invocationRequest struct {
	Tokens         int64   `json:"tokens"`
	CostUSD        float64 `json:"cost_usd"`
	LatencyMs      int64   `json:"latency_ms"`
	Source         string  `json:"source"`
	ConversationID string  `json:"conversation_id"`
}

func agentID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "agentID"))
}

// ══════════════════════════════════════════════════════════════
// ── Gating ───────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) GetGovernance(w http.ResponseWriter, r *http.Request) {
	id := agentID(r)
	h.Governance.EnsureAgentGovernance(id)
	state, _ := h.Governance.Governance(id)
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) RecordEvaluation(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Score == nil {
		respondError(w, http.StatusBadRequest, "score is required")
		return
	}

	status := h.Governance.RecordAgentEvaluation(r.Context(), agentID(r), *req.Score, req.EvaluationID)
	respondJSON(w, http.StatusOK, status)
}

func (h *Handlers) CheckGate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Governance.CheckAgentGate(agentID(r)))
}

// ══════════════════════════════════════════════════════════════
// ── Token Budgets ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) SetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := agentID(r)
	budget, err := h.Governance.SetTokenBudget(r.Context(), id, req.Limit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("agent", id).Int64("limit", req.Limit).Msg("Token budget set")
	respondJSON(w, http.StatusOK, budget)
}

func (h *Handlers) GetBudget(w http.ResponseWriter, r *http.Request) {
	budget, ok := h.Governance.Budget(agentID(r))
	if !ok {
		respondError(w, http.StatusNotFound, "token budget not found")
		return
	}
	respondJSON(w, http.StatusOK, budget)
}

func (h *Handlers) CheckBudget(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, h.Governance.CheckTokenBudget(agentID(r), req.Amount))
}

func (h *Handlers) ConsumeBudget(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	budget, err := h.Governance.ConsumeTokenBudget(r.Context(), agentID(r), req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, budget)
}

func (h *Handlers) ReserveBudget(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Governance.TryConsume(r.Context(), agentID(r), req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusTooManyRequests
	}
	respondJSON(w, status, result)
}

func (h *Handlers) RecordCacheHit(w http.ResponseWriter, r *http.Request) {
	hits, err := h.Governance.RecordCacheHit(r.Context(), agentID(r))
	if errors.Is(err, governance.ErrBudgetNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"cache_hits": hits})
}

// ══════════════════════════════════════════════════════════════
// ── Observability ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) RecordInvocation(w http.ResponseWriter, r *http.Request) {
	var req invocationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Tokens < 0 || req.CostUSD < 0 || req.LatencyMs < 0 {
		respondError(w, http.StatusBadRequest, "tokens, cost_usd and latency_ms must not be negative")
		return
	}

	event := h.Governance.RecordInvocationMetrics(r.Context(), agentID(r), governance.InvocationMetrics{
		Tokens:         req.Tokens,
		CostUSD:        req.CostUSD,
		LatencyMs:      req.LatencyMs,
		Source:         req.Source,
		ConversationID: req.ConversationID,
	})
	respondJSON(w, http.StatusCreated, event)
}

func (h *Handlers) GetObservability(w http.ResponseWriter, r *http.Request) {
	id := agentID(r)
	metrics, ok := h.Governance.Observability(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no invocations recorded for agent "+id)
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}
