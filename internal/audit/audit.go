package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

// Entry records one order mutation. Before is nil for creations and After is
// nil for deletions.
type Entry struct {
	Operation string
	Actor     visibility.Principal
	OrderID   uuid.UUID
	Before    *models.OrderSnapshot
	After     *models.OrderSnapshot
	At        time.Time
}

type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// LogRecorder writes audit entries to the structured log.
type LogRecorder struct {
	logg *logger.Logger
}

func NewLogRecorder(logg *logger.Logger) *LogRecorder {
	return &LogRecorder{logg: logg}
}

func (r *LogRecorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.logg == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	fields := map[string]any{
		"audit":       true,
		"operation":   entry.Operation,
		"order_id":    entry.OrderID.String(),
		"actor_id":    entry.Actor.UserID.String(),
		"actor_role":  entry.Actor.Role.String(),
		"actor_admin": entry.Actor.Admin(),
		"at":          entry.At,
	}
	if entry.Before != nil {
		fields["before"] = entry.Before
	}
	if entry.After != nil {
		fields["after"] = entry.After
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "order audit")
}
