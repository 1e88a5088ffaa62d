package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

const realtimeSinkName = "realtime"

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

// RealtimeSink pushes events onto per-user Redis channels so connected
// buyers and sellers see order changes as they happen.
type RealtimeSink struct {
	pub    channelPublisher
	prefix string
}

type realtimeMessage struct {
	EventID     uuid.UUID             `json:"eventId"`
	Type        enums.OutboxEventType `json:"type"`
	OrderID     uuid.UUID             `json:"orderId"`
	AggregateID uuid.UUID             `json:"aggregateId"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Data        any                   `json:"data"`
}

func NewRealtimeSink(pub channelPublisher, prefix string) (*RealtimeSink, error) {
	if pub == nil {
		return nil, fmt.Errorf("redis publisher required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return nil, fmt.Errorf("realtime channel prefix required")
	}
	return &RealtimeSink{pub: pub, prefix: prefix}, nil
}

func (s *RealtimeSink) Name() string { return realtimeSinkName }

// UserChannel is the channel a user subscribes to.
func (s *RealtimeSink) UserChannel(userID uuid.UUID) string {
	return s.prefix + ":user:" + userID.String()
}

func (s *RealtimeSink) Deliver(ctx context.Context, event Event) error {
	if len(event.Audience) == 0 {
		return nil
	}
	body, err := json.Marshal(realtimeMessage{
		EventID:     event.ID,
		Type:        event.Type,
		OrderID:     event.OrderID,
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt,
		Data:        event.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode realtime message: %w", err)
	}
	var errs error
	for _, userID := range event.Audience {
		if _, err := s.pub.Publish(ctx, s.UserChannel(userID), string(body)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publish to %s: %w", userID, err))
		}
	}
	return errs
}
