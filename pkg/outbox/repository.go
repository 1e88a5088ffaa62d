package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
)

// maxErrorLen bounds last_error and the DLQ error_message columns.
const maxErrorLen = 1024

var errTxRequired = errors.New("outbox: transaction required")

// Repository reads and updates outbox_events. Writes that must land with
// domain changes take the caller's transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&row).Error
}

// FetchUnpublishedForPublish returns up to limit unpublished rows in
// creation order. Postgres locks them with SKIP LOCKED so two relays never
// claim the same row.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := oldestFirst(q).Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) FetchByOrder(orderID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := oldestFirst(r.db.Where("order_id = ?", orderID)).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return updateRow(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// MarkFailedTx records a transient failure and spends one attempt.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    clip(errText(cause)),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx exhausts the row's attempts so the relay stops fetching it.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    clip(errText(cause)),
		"attempt_count": terminalAttempts,
	})
}

func updateRow(tx *gorm.DB, id uuid.UUID, changes map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(changes).Error
}

func oldestFirst(q *gorm.DB) *gorm.DB {
	return q.Order("created_at ASC").Order("id ASC")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func clip(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
