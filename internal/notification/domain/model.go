package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotPending           = errors.New("notification is not pending")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type Audience string

const (
	AudienceUser               Audience = "user"
	AudienceAll                Audience = "all"
	AudienceServiceSubscribers Audience = "service_subscribers"
	// AudienceAdmins delivers to the configured admin chat ids.
	AudienceAdmins Audience = "admins"
)

// Notification is one scheduled message. The idempotency key is a fingerprint
// of the scheduling input, so re-scheduling the same message is a lookup, not
// a duplicate row.
type Notification struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	Audience       Audience          `json:"audience" gorm:"not null"`
	UserID         *snowflake.ID     `json:"user_id" gorm:"index"`
	ServiceID      *snowflake.ID     `json:"service_id" gorm:"index"`
	MessageKey     string            `json:"message_key" gorm:"not null"`
	Payload        datatypes.JSONMap `json:"payload"`
	SendAt         time.Time         `json:"send_at" gorm:"not null;index"`
	Status         Status            `json:"status" gorm:"not null;index"`
	IdempotencyKey string            `json:"idempotency_key" gorm:"uniqueIndex;not null"`
	QueueMessageID string            `json:"queue_message_id"`
	FailureReason  string            `json:"failure_reason"`
	SentAt         *time.Time        `json:"sent_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

// DispatchMeta carries what the push queue knows about the delivery attempt.
type DispatchMeta struct {
	RetryCount     int
	QueueMessageID string
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notification, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Notification, error)
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	Update(ctx context.Context, db *gorm.DB, n *Notification) error
}

// Queue hands a scheduled notification to the external push queue, which calls
// the dispatch endpoint back at or after notBefore.
type Queue interface {
	Enqueue(ctx context.Context, notificationID snowflake.ID, notBefore time.Time) (queueMessageID string, err error)
}

// Messenger delivers rendered text to one recipient on the external channel.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// SubscriberResolver is the one question dispatch needs from the subscription
// domain when the audience is service_subscribers.
type SubscriberResolver interface {
	Subscribers(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]snowflake.ID, error)
}
