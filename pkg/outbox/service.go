package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
)

const envelopeVersion = 1

// DomainEvent is what producers hand to Emit. Zero EventID, Version and
// OccurredAt are filled in.
type DomainEvent struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OrderID       uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores event as an outbox row inside tx, so it reaches the relay
// only if tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("outbox: invalid event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return fmt.Errorf("outbox: invalid aggregate type %q", event.AggregateType)
	}

	row, err := event.withDefaults().toRow()
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":          row.ID.String(),
			"event_type":        row.EventType,
			"aggregate_type":    row.AggregateType,
			"aggregate_id":      row.AggregateID.String(),
			logger.FieldOrderID: row.OrderID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (e DomainEvent) withDefaults() DomainEvent {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.Version <= 0 {
		e.Version = envelopeVersion
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

func (e DomainEvent) toRow() (models.OutboxEvent, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox: encode %s data: %w", e.EventType, err)
	}
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    e.Version,
		EventID:    e.EventID.String(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox: encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            e.EventID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OrderID:       e.OrderID,
		Payload:       payload,
	}, nil
}
