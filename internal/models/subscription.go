package models

import "time"

// SubscriptionStatus mirrors the billing provider's status values.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
)

// Premium reports whether the status unlocks premium features.
func (s SubscriptionStatus) Premium() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

// Subscription is the read-only billing row for a user.
type Subscription struct {
	ID               string             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string             `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Status           SubscriptionStatus `gorm:"type:varchar(24)" json:"status"`
	Plan             string             `gorm:"type:varchar(32)" json:"plan"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Validate checks the subscription row invariants.
func (s *Subscription) Validate() error {
	if s.UserID == "" {
		return malformed("subscriptions", "user_id", "missing")
	}
	if s.Status == "" {
		return malformed("subscriptions", "status", "missing")
	}
	return nil
}
