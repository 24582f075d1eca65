package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `db:"id"`
	CompanyID uuid.UUID `db:"company_id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	Password  string    `db:"password"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionUnpaid   SubscriptionStatus = "unpaid"
)

// Company owns documents; every pipeline row is scoped to one.
type Company struct {
	ID                 uuid.UUID          `db:"id"`
	Name               string             `db:"name"`
	StripeCustomerID   *string            `db:"stripe_customer_id"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status"`
	CreatedAt          time.Time          `db:"created_at"`
}

// CanProcess reports whether the subscription allows pipeline work.
func (c *Company) CanProcess() bool {
	switch c.SubscriptionStatus {
	case SubscriptionCanceled, SubscriptionUnpaid:
		return false
	}
	return true
}
