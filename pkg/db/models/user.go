package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// User is the read-only directory entry for buyers and sellers. Identity is
// owned elsewhere; this service only reads display and contact fields.
type User struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	Email     string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	Phone     *string    `gorm:"column:phone"`
	Role      enums.Role `gorm:"column:role;type:text;not null;default:'buyer'"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
