package customer

import "time"

// Customer describes a user of the platform
type Customer struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	Email            string    `json:"email" gorm:"uniqueIndex;not null"`
	FullName         string    `json:"fullName"`
	Admin            bool      `json:"admin" gorm:"not null;default:false"`
	StripeCustomerID string    `json:"-" gorm:"index"` // Populated on first paid subscription
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
