// Package governance tracks per-agent confidence gating, token budgets and
// invocation metrics.
//
// State is created lazily on first reference and lives for the lifetime of
// the process. All operations are safe for concurrent use. Every mutation is
// applied in memory first and then handed to an audit.Recorder; audit
// persistence never affects the result of an operation.
package governance

import (
	"errors"
	"sync"
	"time"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/internal/metrics"
	"github.com/ghlvoice/control-plane/pkg/models"
)

// DefaultGateThreshold gates agents whose confidence is below 60.
const DefaultGateThreshold = 60

// DefaultTokenBudget is the limit used when a budget is created implicitly.
const DefaultTokenBudget = 100000

var (
	// ErrBudgetNotFound is returned by operations that require an initialized budget.
	ErrBudgetNotFound = errors.New("token budget not initialized")
	// ErrInvalidAmount is returned for negative token amounts or limits.
	ErrInvalidAmount = errors.New("amount must not be negative")
	// ErrAmountOverflow is returned when consumption would exceed the int64 range.
	ErrAmountOverflow = errors.New("amount overflows token counter")
)

// Store is the in-memory governance state for all agents.
type Store struct {
	mu            sync.RWMutex
	governance    map[string]*models.AgentGovernanceState // key: agent id
	budgets       map[string]*models.TokenBudget          // key: agent id
	observability map[string]*models.ObservabilityMetrics // key: agent id

	threshold     float64
	defaultBudget int64
	recorder      audit.Recorder
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithGateThreshold sets the confidence threshold below which agents are gated.
func WithGateThreshold(threshold float64) Option {
	return func(s *Store) { s.threshold = threshold }
}

// WithDefaultTokenBudget sets the limit used for implicitly created budgets.
func WithDefaultTokenBudget(limit int64) Option {
	return func(s *Store) {
		if limit > 0 {
			s.defaultBudget = limit
		}
	}
}

// WithRecorder sets where audit records are sent.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty governance store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		governance:    make(map[string]*models.AgentGovernanceState),
		budgets:       make(map[string]*models.TokenBudget),
		observability: make(map[string]*models.ObservabilityMetrics),
		threshold:     DefaultGateThreshold,
		defaultBudget: DefaultTokenBudget,
		recorder:      audit.Discard,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Threshold returns the gate threshold.
func (s *Store) Threshold() float64 { return s.threshold }

// DefaultBudget returns the limit used for implicitly created budgets.
func (s *Store) DefaultBudget() int64 { return s.defaultBudget }

// ── Read accessors ──────────────────────────────────────────

// Governance returns a copy of the agent's governance state.
func (s *Store) Governance(agentID string) (models.AgentGovernanceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.governance[agentID]
	if !ok {
		return models.AgentGovernanceState{}, false
	}
	cp := *g
	cp.EvaluationHistory = append([]models.Evaluation(nil), g.EvaluationHistory...)
	return cp, true
}

// Budget returns a copy of the agent's token budget.
func (s *Store) Budget(agentID string) (models.TokenBudget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[agentID]
	if !ok {
		return models.TokenBudget{}, false
	}
	return *b, true
}

// Observability returns a copy of the agent's invocation metrics.
func (s *Store) Observability(agentID string) (models.ObservabilityMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.observability[agentID]
	if !ok {
		return models.ObservabilityMetrics{}, false
	}
	cp := *o
	cp.Events = append([]models.InvocationEvent(nil), o.Events...)
	return cp, true
}
