package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInsufficientCredit = errors.New("insufficient credit balance")

type EntryType string

const (
	EntryReferralReward  EntryType = "referral_reward"
	EntrySpend           EntryType = "spend"
	EntryAdminAdjustment EntryType = "admin_adjustment"
)

// LedgerEntry is append-only. Each row carries the delta and the resulting
// balance, so the current balance is the BalanceAfter of the newest row.
type LedgerEntry struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID       snowflake.ID  `json:"user_id" gorm:"not null;index"`
	Type         EntryType     `json:"type" gorm:"not null"`
	Amount       string        `json:"amount" gorm:"not null"`
	BalanceAfter string        `json:"balance_after" gorm:"not null"`
	OrderID      *snowflake.ID `json:"order_id"`
	Note         string        `json:"note"`
	CreatedBy    string        `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at" gorm:"index"`
}

func (LedgerEntry) TableName() string { return "credit_ledger" }

type Repository interface {
	// LatestEntryForUpdate reads the newest ledger row for the user with a
	// row-level lock, so concurrent approvals for one user serialize on the
	// balance instead of racing it.
	LatestEntryForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*LedgerEntry, error)
	LatestEntry(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*LedgerEntry, error)
	Append(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]LedgerEntry, error)
}
