// Package models holds the shared data types of the governance control plane.
// They are returned by the governance store and webhook dispatcher and
// serialized as-is by the HTTP API.
package models

import (
	"time"
)

// ── Governance ───────────────────────────────────────────────

// DefaultConfidenceScore is the confidence assigned to an agent before any
// evaluation has been recorded.
const DefaultConfidenceScore = 100

// Evaluation is a single recorded confidence evaluation for an agent.
type Evaluation struct {
	Score        float64   `json:"score"`
	EvaluationID string    `json:"evaluation_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// AgentGovernanceState tracks confidence-based gating for one agent.
type AgentGovernanceState struct {
	AgentID           string       `json:"agent_id"`
	ConfidenceScore   float64      `json:"confidence_score"`
	IsGated           bool         `json:"is_gated"`
	GateReason        string       `json:"gate_reason,omitempty"` // empty when not gated
	EvaluationHistory []Evaluation `json:"evaluation_history"`    // append-only, oldest first
	UpdatedAt         time.Time    `json:"updated_at"`
}

// GateStatus is the result of a gate check or evaluation.
type GateStatus struct {
	IsGated bool   `json:"is_gated"`
	Reason  string `json:"reason,omitempty"`
}

// ── Token Budgets ────────────────────────────────────────────

// TokenBudget is the per-agent token quota. Consumed may exceed Limit:
// consumption is recorded unconditionally and admission is a separate check.
type TokenBudget struct {
	AgentID   string    `json:"agent_id"`
	Limit     int64     `json:"limit"`
	Consumed  int64     `json:"consumed"`
	CacheHits int64     `json:"cache_hits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Remaining returns Limit - Consumed. It is negative when the budget overshot.
func (b *TokenBudget) Remaining() int64 {
	return b.Limit - b.Consumed
}

// BudgetCheck answers whether a prospective amount fits in a budget.
// Remaining is computed before the prospective amount is applied.
type BudgetCheck struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
}

// ── Observability ────────────────────────────────────────────

// InvocationEvent is one recorded agent invocation.
type InvocationEvent struct {
	Tokens         int64     `json:"tokens"`
	CostUSD        float64   `json:"cost_usd"`
	LatencyMs      int64     `json:"latency_ms"`
	Source         string    `json:"source"` // e.g. "live", "test", "cache"
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ObservabilityMetrics aggregates invocation events for one agent.
type ObservabilityMetrics struct {
	AgentID      string            `json:"agent_id"`
	TotalTokens  int64             `json:"total_tokens"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	Events       []InvocationEvent `json:"events"`
}

// ── Webhooks ─────────────────────────────────────────────────

// WildcardEventType subscribes a handler to every event type.
const WildcardEventType = "*"

// Handler registration and dispatch statuses.
const (
	HandlerStatusRegistered = "registered"
	HandlerStatusRemoved    = "removed"
	HandlerStatusNotFound   = "not_found"

	DispatchStatusSuccess = "success"
	DispatchStatusError   = "error"
)

// HandlerOptions is caller-supplied configuration attached to a registration.
type HandlerOptions struct {
	Description string `json:"description,omitempty"`
	// Condition is an optional boolean expression over the event data
	// (e.g. `data.call_status == "completed"`). Empty means always match.
	Condition string                 `json:"condition,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// HandlerRegistration describes a registered handler without its callable.
type HandlerRegistration struct {
	HandlerID    string         `json:"handler_id"`
	EventType    string         `json:"event_type"`
	Options      HandlerOptions `json:"options"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// RegistrationResult confirms a handler registration.
type RegistrationResult struct {
	HandlerID    string    `json:"handler_id"`
	Status       string    `json:"status"`
	EventType    string    `json:"event_type"`
	RegisteredAt time.Time `json:"registered_at"`
}

// DispatchResult is the outcome of invoking one handler for one event.
type DispatchResult struct {
	HandlerID string      `json:"handler_id"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// RemoveResult reports the outcome of a handler removal.
type RemoveResult struct {
	Status    string `json:"status"`
	HandlerID string `json:"handler_id"`
}

// ── Audit ────────────────────────────────────────────────────

// Audit record statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditRecord is an append-only log entry describing an action taken by the
// governance store or the webhook dispatcher.
type AuditRecord struct {
	ID           string                 `json:"id" db:"id"`
	SubjectID    string                 `json:"subject_id" db:"subject_id"` // agent or handler id
	Action       string                 `json:"action" db:"action"`
	Payload      map[string]interface{} `json:"payload,omitempty" db:"payload"`
	Context      map[string]interface{} `json:"context,omitempty" db:"context"`
	Status       string                 `json:"status" db:"status"`
	ErrorMessage string                 `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time              `json:"timestamp" db:"created_at"`
}

// AuditFilter provides query options for listing audit records.
type AuditFilter struct {
	SubjectID string
	Action    string
	Status    string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
