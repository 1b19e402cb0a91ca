package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// pgExecer is the subset of *pgxpool.Pool the sink uses.
type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes audit records to the governor_audit_log table.
type PostgresSink struct {
	db    pgExecer
	close func()
}

// NewPostgresSink connects to PostgreSQL and creates the audit table if needed.
func NewPostgresSink(ctx context.Context, connURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("audit postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit postgres ping: %w", err)
	}

	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit postgres migrate: %w", err)
	}

	log.Info().Msg("Postgres audit sink initialized")
	return s, nil
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS governor_audit_log (
			id            TEXT PRIMARY KEY,
			subject_id    TEXT NOT NULL,
			action        TEXT NOT NULL,
			payload       JSONB NOT NULL DEFAULT '{}',
			context       JSONB NOT NULL DEFAULT '{}',
			status        TEXT NOT NULL,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_governor_audit_subject ON governor_audit_log (subject_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_governor_audit_action ON governor_audit_log (action);
	`)
	return err
}

func (s *PostgresSink) Insert(ctx context.Context, rec *models.AuditRecord) error {
	payload, err := marshalJSONB(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	auditCtx, err := marshalJSONB(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal audit context: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO governor_audit_log (id, subject_id, action, payload, context, status, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.SubjectID,
		rec.Action,
		payload,
		auditCtx,
		rec.Status,
		nullIfEmpty(rec.ErrorMessage),
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func marshalJSONB(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
