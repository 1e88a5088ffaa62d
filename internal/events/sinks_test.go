package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	dbpkg "github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/payloads"
)

type fakePublisher struct {
	channels []string
	messages []string
	failFor  string
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message any) (int64, error) {
	if p.failFor != "" && strings.HasSuffix(channel, p.failFor) {
		return 0, errors.New("publish failed")
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message.(string))
	return 1, nil
}

type fakeInserter struct {
	table string
	rows  []any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.table = table
	f.rows = append(f.rows, rows...)
	return f.err
}

func TestRealtimeSinkPublishesToEveryAudienceMember(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := NewRealtimeSink(pub, "agrimarket:realtime:")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	buyer, seller := uuid.New(), uuid.New()
	event := testEvent()
	event.Audience = []uuid.UUID{buyer, seller}
	event.Payload = payloads.OrderCreatedEvent{}

	if err := sink.Deliver(context.Background(), event); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(pub.channels) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.channels))
	}
	if pub.channels[0] != "agrimarket:realtime:user:"+buyer.String() {
		t.Fatalf("unexpected channel %s", pub.channels[0])
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(pub.messages[1]), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg["type"] != string(enums.EventOrderCreated) || msg["orderId"] != event.OrderID.String() {
		t.Fatalf("unexpected message %v", msg)
	}
}

func TestRealtimeSinkReportsPartialFailure(t *testing.T) {
	failing := uuid.New()
	pub := &fakePublisher{failFor: failing.String()}
	sink, err := NewRealtimeSink(pub, "rt")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	event := testEvent()
	event.Audience = []uuid.UUID{uuid.New(), failing}

	if err := sink.Deliver(context.Background(), event); err == nil {
		t.Fatalf("expected error for failed channel")
	}
	if len(pub.channels) != 1 {
		t.Fatalf("expected the healthy channel to still receive the event")
	}
}

func TestNewRealtimeSinkRequiresPrefix(t *testing.T) {
	if _, err := NewRealtimeSink(&fakePublisher{}, " : "); err == nil {
		t.Fatalf("expected error for blank prefix")
	}
}

func TestAnalyticsSinkBuildsOrderRow(t *testing.T) {
	ins := &fakeInserter{}
	sink, err := NewAnalyticsSink(ins, " order_events ")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	snap := twoSellerSnapshot()
	events := OrderPlaced(snap, nil, time.Now())

	for _, ev := range events {
		if err := sink.Deliver(context.Background(), ev); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if ins.table != "order_events" {
		t.Fatalf("unexpected table %q", ins.table)
	}
	if len(ins.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(ins.rows))
	}
	first := ins.rows[0].(*orderEventRow)
	if first.EventType != "order_created" || first.GrandTotal.StringVal != "45.00" || first.SellerID.Valid {
		t.Fatalf("unexpected order row %+v", first)
	}
	second := ins.rows[1].(*orderEventRow)
	if !second.SellerID.Valid || second.SellerID.StringVal != snap.SubOrders[0].SellerID.String() {
		t.Fatalf("sub-order row should carry the seller, got %+v", second)
	}
	if !second.Payload.Valid {
		t.Fatalf("expected payload json")
	}
}

func TestOutboxSinkWritesRow(t *testing.T) {
	dsn := "file:events_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := outbox.NewRepository(conn)
	sink, err := NewOutboxSink(dbpkg.Wrap(conn), outbox.NewService(repo, nil))
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	snap := twoSellerSnapshot()
	for _, ev := range OrderPlaced(snap, nil, time.Now()) {
		if err := sink.Deliver(context.Background(), ev); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}

	rows, err := repo.FetchByOrder(snap.OrderID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 outbox rows, got %d", len(rows))
	}
	var created, subCreated int
	for _, row := range rows {
		switch row.EventType {
		case enums.EventOrderCreated:
			created++
		case enums.EventSubOrderCreated:
			subCreated++
		}
	}
	if created != 1 || subCreated != 2 {
		t.Fatalf("unexpected event mix created=%d sub_created=%d", created, subCreated)
	}
}
