package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/agrimarket/fulfillment-backend/pkg/outbox/payloads"
)

const analyticsSinkName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// AnalyticsSink streams one BigQuery row per order event.
type AnalyticsSink struct {
	client tableInserter
	table  string
}

type orderEventRow struct {
	EventID     string               `bigquery:"event_id"`
	EventType   string               `bigquery:"event_type"`
	OccurredAt  time.Time            `bigquery:"occurred_at"`
	OrderID     string               `bigquery:"order_id"`
	AggregateID string               `bigquery:"aggregate_id"`
	SellerID    cbigquery.NullString `bigquery:"seller_id"`
	Status      cbigquery.NullString `bigquery:"status"`
	GrandTotal  cbigquery.NullString `bigquery:"grand_total"`
	Payload     cbigquery.NullJSON   `bigquery:"payload"`
}

func NewAnalyticsSink(client tableInserter, table string) (*AnalyticsSink, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	return &AnalyticsSink{client: client, table: strings.TrimSpace(table)}, nil
}

func (s *AnalyticsSink) Name() string { return analyticsSinkName }

func (s *AnalyticsSink) Deliver(ctx context.Context, event Event) error {
	row, err := buildOrderEventRow(event)
	if err != nil {
		return err
	}
	return s.client.InsertRows(ctx, s.table, []any{row})
}

func buildOrderEventRow(event Event) (*orderEventRow, error) {
	row := &orderEventRow{
		EventID:     event.ID.String(),
		EventType:   string(event.Type),
		OccurredAt:  event.OccurredAt.UTC(),
		OrderID:     event.OrderID.String(),
		AggregateID: event.AggregateID.String(),
	}

	switch p := event.Payload.(type) {
	case payloads.OrderCreatedEvent:
		row.Status = nullString(string(p.Order.Status))
		row.GrandTotal = nullString(p.Order.GrandTotal.StringFixed(2))
	case payloads.SubOrderCreatedEvent:
		row.SellerID = nullString(p.SubOrder.SellerID.String())
		row.Status = nullString(string(p.SubOrder.Status))
	case payloads.OrderStatusChangedEvent:
		row.Status = nullString(string(p.To))
		row.GrandTotal = nullString(p.GrandTotal.StringFixed(2))
	case payloads.SubOrderStatusChangedEvent:
		row.SellerID = nullString(p.SellerID.String())
		row.Status = nullString(string(p.To))
	}

	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode analytics payload: %w", err)
		}
		row.Payload = cbigquery.NullJSON{JSONVal: string(data), Valid: true}
	}
	return row, nil
}

func nullString(value string) cbigquery.NullString {
	if value == "" {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: value, Valid: true}
}
