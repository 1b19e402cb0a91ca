// Package server wires the governance control plane together: config,
// audit sinks, the governance store, the webhook dispatcher and the HTTP
// router.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//	defer srv.Shutdown(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ghlvoice/control-plane/internal/api"
	"github.com/ghlvoice/control-plane/internal/api/handlers"
	"github.com/ghlvoice/control-plane/internal/api/middleware"
	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/internal/config"
	"github.com/ghlvoice/control-plane/internal/governance"
	"github.com/ghlvoice/control-plane/internal/metrics"
	"github.com/ghlvoice/control-plane/internal/retention"
	"github.com/ghlvoice/control-plane/internal/telemetry"
	"github.com/ghlvoice/control-plane/internal/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Server holds the initialized control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Governance *governance.Store
	Webhooks   *webhook.Dispatcher

	// Config is the resolved configuration, policy file applied.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	outbox        *audit.Outbox
	auth          *middleware.APIKeyAuth
	stopJanitor   context.CancelFunc
	shutdownTrace func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	var policy *config.Policy
	if cfg.Governance.PolicyFile != "" {
		p, err := config.LoadPolicy(cfg.Governance.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		p.Apply(&cfg.Governance)
		policy = p
		log.Info().Str("file", cfg.Governance.PolicyFile).Int("budgets", len(p.Budgets)).Msg("Governance policy loaded")
	}

	shutdownTrace, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, memLog, err := buildAuditSink(ctx, cfg.Audit)
	if err != nil {
		shutdownTrace(ctx)
		return nil, err
	}
	outbox := audit.NewOutbox(sink, cfg.Audit.OutboxSize, m)

	gov := governance.NewStore(
		governance.WithGateThreshold(cfg.Governance.GateThreshold),
		governance.WithDefaultTokenBudget(cfg.Governance.DefaultTokenBudget),
		governance.WithRecorder(outbox),
		governance.WithMetrics(m),
	)
	if policy != nil {
		for agentID, limit := range policy.Budgets {
			if _, err := gov.SetTokenBudget(ctx, agentID, limit); err != nil {
				log.Warn().Err(err).Str("agent", agentID).Msg("Failed to seed token budget")
			}
		}
	}
	log.Info().
		Float64("gate_threshold", gov.Threshold()).
		Int64("default_budget", gov.DefaultBudget()).
		Msg("Governance store initialized")

	disp := webhook.NewDispatcher(webhook.WithRecorder(outbox), webhook.WithMetrics(m))
	fwd := webhook.NewForwarder(
		time.Duration(cfg.Webhooks.ForwardTimeoutSeconds)*time.Second,
		cfg.Webhooks.ForwardAttempts,
		time.Second,
	)
	log.Info().Msg("Webhook dispatcher initialized")

	stopJanitor := func() {}
	if memLog != nil && cfg.Audit.RetentionHours > 0 {
		janitorCtx, cancel := context.WithCancel(context.Background())
		j := retention.NewJanitor(memLog,
			time.Duration(cfg.Audit.RetentionHours)*time.Hour,
			time.Duration(cfg.Audit.RetentionSweepMinutes)*time.Minute,
			m,
		)
		go j.Start(janitorCtx)
		stopJanitor = cancel
	}

	h := handlers.New(gov, disp, fwd, memLog)
	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)
	router := api.NewRouter(cfg, h, reg, auth)

	return &Server{
		Handler:       router,
		Governance:    gov,
		Webhooks:      disp,
		Config:        cfg,
		Port:          cfg.Port,
		outbox:        outbox,
		auth:          auth,
		stopJanitor:   stopJanitor,
		shutdownTrace: shutdownTrace,
	}, nil
}

// ReloadAPIKeys re-reads GOVERNOR_API_KEYS (and .env, or the given env
// files) and swaps the accepted key set without restarting the listener.
func (s *Server) ReloadAPIKeys(envFiles ...string) error {
	authCfg, err := config.ReloadAuth(envFiles...)
	if err != nil {
		return fmt.Errorf("reload api keys: %w", err)
	}
	s.Config.Auth = authCfg
	s.auth.SetKeys(authCfg.APIKeys)
	return nil
}

// Shutdown stops the retention janitor, drains the audit outbox, closes the
// sinks and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopJanitor()
	return errors.Join(s.outbox.Close(), s.shutdownTrace(ctx))
}

// buildAuditSink opens every configured sink. The returned MemorySink is nil
// unless "memory" is enabled.
func buildAuditSink(ctx context.Context, cfg config.AuditConfig) (audit.Sink, *audit.MemorySink, error) {
	multi := audit.NewMultiSink()
	var memLog *audit.MemorySink

	fail := func(err error) (audit.Sink, *audit.MemorySink, error) {
		multi.Close()
		return nil, nil, err
	}

	for _, name := range cfg.Sinks {
		switch name {
		case "memory":
			memLog = audit.NewMemorySink()
			multi.Add(name, memLog)
		case "postgres":
			pg, err := audit.NewPostgresSink(ctx, cfg.DatabaseURL)
			if err != nil {
				return fail(fmt.Errorf("postgres audit sink: %w", err))
			}
			multi.Add(name, pg)
		case "redis":
			rs, err := audit.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisStream, cfg.RedisMaxLen)
			if err != nil {
				return fail(fmt.Errorf("redis audit sink: %w", err))
			}
			multi.Add(name, rs)
		case "pubsub":
			ps, err := audit.NewPubSubSink(ctx, cfg.PubSubProject, cfg.PubSubTopic)
			if err != nil {
				return fail(fmt.Errorf("pubsub audit sink: %w", err))
			}
			multi.Add(name, ps)
		default:
			return fail(fmt.Errorf("unknown audit sink %q", name))
		}
		log.Info().Str("sink", name).Msg("Audit sink enabled")
	}

	if multi.Len() == 0 {
		log.Warn().Msg("No audit sinks configured; audit records are discarded")
	}
	return multi, memLog, nil
}
