package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

// PubSubSink publishes audit records to a Google Cloud Pub/Sub topic. The
// subject, action and status are copied into message attributes so
// subscriptions can filter without decoding the body.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink creates a Pub/Sub client for projectID publishing to topicID.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	if projectID == "" {
		return nil, fmt.Errorf("audit pubsub: project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("audit pubsub client: %w", err)
	}

	log.Info().Str("project", projectID).Str("topic", topicID).Msg("Pub/Sub audit sink initialized")
	return &PubSubSink{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (s *PubSubSink) Insert(ctx context.Context, rec *models.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	res := s.topic.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"subject_id": rec.SubjectID,
			"action":     rec.Action,
			"status":     rec.Status,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	return nil
}

func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
