package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Referral attributes an invitee to the inviter whose token they arrived
// with. One row per invitee.
type Referral struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	InviterUserID snowflake.ID `json:"inviter_user_id" gorm:"not null;index"`
	InviteeUserID snowflake.ID `json:"invitee_user_id" gorm:"not null;uniqueIndex"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (Referral) TableName() string { return "referrals" }

type Repository interface {
	FindByInvitee(ctx context.Context, db *gorm.DB, inviteeUserID snowflake.ID) (*Referral, error)
	Insert(ctx context.Context, db *gorm.DB, referral *Referral) error
}
