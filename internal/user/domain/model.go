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
	ErrUserNotFound    = errors.New("user not found")
	ErrProfileNotFound = errors.New("field profile not found")
)

// User is an end user reachable over the external messaging channel; ChatID is
// the channel's recipient identifier.
type User struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ChatID        string       `json:"chat_id" gorm:"uniqueIndex;not null"`
	Username      string       `json:"username"`
	ReferralToken string       `json:"referral_token" gorm:"uniqueIndex"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// FieldProfile is a saved set of user-supplied input values for one service,
// letting the same service be repurchased for different target accounts.
type FieldProfile struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID      `json:"user_id" gorm:"not null;index"`
	ServiceID snowflake.ID      `json:"service_id" gorm:"not null;index"`
	Label     string            `json:"label"`
	Values    datatypes.JSONMap `json:"values" gorm:"not null"`
	CreatedAt time.Time         `json:"created_at"`
}

func (FieldProfile) TableName() string { return "field_profiles" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByChatID(ctx context.Context, db *gorm.DB, chatID string) (*User, error)
	FindByReferralToken(ctx context.Context, db *gorm.DB, token string) (*User, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]User, error)
	Insert(ctx context.Context, db *gorm.DB, user *User) error
}
