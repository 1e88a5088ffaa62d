package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/registry"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type (
	dbClient interface {
		Ping(context.Context) error
		WithTx(context.Context, func(*gorm.DB) error) error
	}

	pubSubClient interface {
		Ping(context.Context) error
		Publisher(topic string) *gcppubsub.Publisher
	}

	outboxRepository interface {
		FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
		MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
		MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
		MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
	}

	dlqRepository interface {
		InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
	}

	registryResolver interface {
		Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
	}

	publisher interface {
		Publish(context.Context, *gcppubsub.Message) publishResult
	}

	publishResult interface {
		Get(context.Context) (serverID string, err error)
	}
)

// ServiceParams wires the relay. PublisherFactory defaults to ordered
// Pub/Sub publishers cached per topic.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	Metrics          *metrics.EventMetrics
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory func(topic string) publisher
	DLQRepository    dlqRepository
}

// Service drains committed order events from outbox_events to Pub/Sub.
// One order's events share an ordering key so subscribers see them in
// commit order.
type Service struct {
	logg      *logger.Logger
	metrics   *metrics.EventMetrics
	db        dbClient
	pubsub    pubSubClient
	rows      outboxRepository
	dlq       dlqRepository
	resolver  registryResolver
	publisher func(topic string) publisher

	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	missing := ""
	switch {
	case p.Config == nil:
		missing = "config"
	case p.Logger == nil:
		missing = "logger"
	case p.DB == nil:
		missing = "database client"
	case p.PubSub == nil:
		missing = "pubsub client"
	case p.Repository == nil:
		missing = "outbox repository"
	case p.Registry == nil:
		missing = "event registry"
	case p.DLQRepository == nil:
		missing = "dlq repository"
	}
	if missing != "" {
		return nil, fmt.Errorf("outbox publisher: %s is required", missing)
	}

	s := &Service{
		logg:        p.Logger,
		metrics:     p.Metrics,
		db:          p.DB,
		pubsub:      p.PubSub,
		rows:        p.Repository,
		dlq:         p.DLQRepository,
		resolver:    p.Registry,
		publisher:   p.PublisherFactory,
		batchSize:   positiveOr(p.Config.Outbox.BatchSize, 50),
		maxAttempts: positiveOr(p.Config.Outbox.MaxAttempts, 10),
		idle:        time.Duration(positiveOr(p.Config.Outbox.PollIntervalMS, 500)) * time.Millisecond,
	}
	if s.publisher == nil {
		s.publisher = cachedPublishers(p.PubSub)
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func cachedPublishers(client pubSubClient) func(string) publisher {
	byTopic := make(map[string]publisher)
	return func(topic string) publisher {
		if pub, ok := byTopic[topic]; ok {
			return pub
		}
		pub := newOrderedPublisher(client.Publisher(topic))
		if pub != nil {
			byTopic[topic] = pub
		}
		return pub
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; a failed batch backs off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database unavailable", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub unavailable", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := s.idle
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		drained, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = nextBackoff(wait, s.idle, maxBackoff)
		case drained:
			wait = s.idle
			continue
		default:
			wait = s.idle
		}
		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch relays one locked batch inside a single transaction and
// reports whether any rows were found.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var found bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := s.rows.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		found = len(batch) > 0
		for _, row := range batch {
			outcome, err := s.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			s.metrics.ObserveRelay(outcome)
		}
		return nil
	})
	return found, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

var errNilResult = errors.New("publisher returned no result")
