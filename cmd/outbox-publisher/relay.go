package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second

	relayPublished    = "published"
	relayRetried      = "retried"
	relayDeadLettered = "dead_lettered"
)

// relay publishes row and records the outcome on it. Publish failures are
// absorbed into the outcome; a returned error means the bookkeeping itself
// failed and the batch must roll back.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	fields := eventFields(row, nil)

	resolved, err := s.resolver.Resolve(row)
	if err != nil {
		return relayDeadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields = eventFields(row, resolved)

	pubErr := s.publish(ctx, row, resolved)
	var permanent registry.NonRetryableError
	switch {
	case pubErr == nil:
		if err := s.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "order event relayed")
		return relayPublished, nil

	case errors.As(pubErr, &permanent):
		return relayDeadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)

	case row.AttemptCount+1 >= s.maxAttempts:
		fields["attempt_count"] = row.AttemptCount + 1
		exhausted := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr)
		return relayDeadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
	}

	fields["attempt_count"] = row.AttemptCount + 1
	fields["error"] = pubErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "order event publish failed, will retry")
	if err := s.rows.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	return relayRetried, nil
}

// deadLetter copies row into outbox_dlq and exhausts its attempts.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "order event dead-lettered")

	msg := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := s.rows.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.OrderID.String(),
		Attributes:  messageAttributes(row, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %q: %w", topic, errNilResult))
	}
	_, err := result.Get(ctx)
	return err
}

func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"order_id":       row.OrderID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
}

func eventFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"order_id":       row.OrderID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if id := resolved.Envelope.EventID; id != "" {
			fields["event_id"] = id
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	return fields
}

// orderedPublisher turns on message ordering and resumes the ordering key
// after a failed publish, otherwise Pub/Sub rejects every later message for
// that order.
type orderedPublisher struct {
	pub *gcppubsub.Publisher
}

func newOrderedPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return orderedPublisher{pub: p}
}

func (o orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return orderedResult{res: o.pub.Publish(ctx, msg), pub: o.pub, key: msg.OrderingKey}
}

type orderedResult struct {
	res *gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

func (r orderedResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errNilResult
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
