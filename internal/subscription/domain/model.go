package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Subscription is a time-boxed entitlement to a service. Subscriptions for
// the same (user, service) pair coexist when they target different field
// profiles; at most one active subscription per (user, service, profile)
// triple is meaningful.
type Subscription struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID  `json:"user_id" gorm:"not null;index:idx_sub_user_service"`
	ServiceID      snowflake.ID  `json:"service_id" gorm:"not null;index:idx_sub_user_service"`
	OrderID        snowflake.ID  `json:"order_id" gorm:"not null"`
	FieldProfileID *snowflake.ID `json:"field_profile_id"`
	StartedAt      time.Time     `json:"started_at" gorm:"not null"`
	DurationDays   int           `json:"duration_days" gorm:"not null"`
	Status         Status        `json:"status" gorm:"not null;index"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// End is the computed expiry: start plus duration. Extension grows
// DurationDays and never moves StartedAt.
func (s Subscription) End() time.Time {
	return s.StartedAt.AddDate(0, 0, s.DurationDays)
}

// Extendable reports whether an approval for the same (user, service,
// profile) should extend this subscription rather than create a new one. An
// end exactly equal to now is already over.
func (s Subscription) Extendable(now time.Time) bool {
	return s.End().After(now)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// FindActiveForProfile resolves the newest active subscription for the
	// (user, service, profile) triple; profile nil matches only rows without
	// a profile.
	FindActiveForProfile(ctx context.Context, db *gorm.DB, userID, serviceID snowflake.ID, profileID *snowflake.ID) (*Subscription, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Subscription, error)
	ListSubscriberUserIDs(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]snowflake.ID, error)
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
}
