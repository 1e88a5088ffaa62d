package types

// Billing is the buyer contact snapshot captured at checkout. It is embedded
// into the orders table with the billing_ prefix and never changes afterwards.
type Billing struct {
	Name    string  `json:"name" gorm:"column:name;not null" validate:"required,max=200"`
	Email   string  `json:"email" gorm:"column:email;not null" validate:"required,email"`
	Phone   string  `json:"phone" gorm:"column:phone;not null" validate:"required,max=40"`
	Address string  `json:"address" gorm:"column:address;not null" validate:"required,max=500"`
	City    *string `json:"city,omitempty" gorm:"column:city" validate:"omitempty,max=120"`
	Country *string `json:"country,omitempty" gorm:"column:country" validate:"omitempty,max=120"`
}
