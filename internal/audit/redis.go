package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// streamClient is the subset of *redis.Client the sink uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSink appends audit records to a capped Redis stream.
type RedisSink struct {
	client streamClient
	stream string
	maxLen int64
}

// NewRedisSink connects to Redis at addr and writes to stream, trimming it
// to roughly maxLen entries.
func NewRedisSink(ctx context.Context, addr, stream string, maxLen int64) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("audit redis ping %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Str("stream", stream).Msg("Redis audit sink initialized")
	return newRedisSink(client, stream, maxLen), nil
}

func newRedisSink(client streamClient, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Insert(ctx context.Context, rec *models.AuditRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	auditCtx, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal audit context: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":            rec.ID,
			"subject_id":    rec.SubjectID,
			"action":        rec.Action,
			"payload":       string(payload),
			"context":       string(auditCtx),
			"status":        rec.Status,
			"error_message": rec.ErrorMessage,
			"timestamp":     rec.Timestamp.Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
