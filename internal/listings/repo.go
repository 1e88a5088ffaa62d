package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/internal/repo"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
)

// Repository is the read and conditional-decrement view over listings that
// checkout needs. Catalog management lives elsewhere.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ReserveQuantity(ctx context.Context, id uuid.UUID, qty int) error
}

type repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.base.DB(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found").
				WithDetails(map[string]any{"listingId": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	return &listing, nil
}

// ReserveQuantity decrements available stock only if enough remains. The
// guard in the WHERE clause is what serializes concurrent checkouts.
func (r *repository) ReserveQuantity(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}
	res := r.base.DB(ctx).Exec(`
		UPDATE listings
		SET quantity = quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quantity >= ?
	`, qty, id, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve listing quantity")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "stock changed, retry").
			WithDetails(map[string]any{"listingId": id})
	}
	return nil
}
