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
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotReady means an admin decision was attempted on an order that
	// is not awaiting review.
	ErrOrderNotReady = errors.New("order is not awaiting admin review")
	ErrStateConflict = errors.New("order state conflict")
)

type Status string

const (
	StatusDraft               Status = "draft"
	StatusAwaitingProof       Status = "awaiting_proof"
	StatusAwaitingAdminReview Status = "awaiting_admin_review"
	StatusApproved            Status = "approved"
	StatusDismissed           Status = "dismissed"
	StatusCancelled           Status = "cancelled"
)

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDismissed || s == StatusCancelled
}

// Order snapshots every monetary figure at draft time; the snapshot is
// immutable afterwards, so later price or code changes never move an order
// already in flight.
type Order struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID      `json:"user_id" gorm:"not null;index"`
	ServiceID      snowflake.ID      `json:"service_id" gorm:"not null;index"`
	FieldProfileID *snowflake.ID     `json:"field_profile_id"`
	FieldValues    datatypes.JSONMap `json:"field_values"`
	Status         Status            `json:"status" gorm:"not null;index"`

	BasePrice        string        `json:"base_price" gorm:"not null"`
	DiscountAmount   string        `json:"discount_amount" gorm:"not null"`
	DiscountedAmount string        `json:"discounted_amount" gorm:"not null"`
	CreditAmount     string        `json:"credit_amount" gorm:"not null"`
	PayableAmount    string        `json:"payable_amount" gorm:"not null"`
	DiscountCodeID   *snowflake.ID `json:"discount_code_id"`
	DiscountCode     string        `json:"discount_code"`

	ProofFileID      string     `json:"proof_file_id"`
	ProofMimeType    string     `json:"proof_mime_type"`
	ProofSizeBytes   int64      `json:"proof_size_bytes"`
	ProofSubmittedAt *time.Time `json:"proof_submitted_at"`

	AdminActionBy string     `json:"admin_action_by"`
	AdminActionAt *time.Time `json:"admin_action_at"`
	DismissReason string     `json:"dismiss_reason"`
	CancelledAt   *time.Time `json:"cancelled_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// FindByIDForUpdate locks the row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Order, error)
	ListAwaitingReview(ctx context.Context, db *gorm.DB) ([]Order, error)
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	Update(ctx context.Context, db *gorm.DB, order *Order) error
	// HasApprovedOrder backs first-purchase-only discount checks.
	HasApprovedOrder(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
}
