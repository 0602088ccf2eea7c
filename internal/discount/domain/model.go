package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrDiscountNotFound = errors.New("discount code not found")
	ErrInvalidAmount    = errors.New("invalid discount amount")
)

type DiscountType string

const (
	TypePercent DiscountType = "percent"
	TypeFixed   DiscountType = "fixed"
)

// DiscountCode holds the rule; amounts are decimal strings like every other
// monetary column. An empty service scope means the code applies to all
// services.
type DiscountCode struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Code              string       `json:"code" gorm:"uniqueIndex;not null"`
	Type              DiscountType `json:"type" gorm:"not null"`
	Amount            string       `json:"amount" gorm:"not null"`
	MinOrderAmount    *string      `json:"min_order_amount"`
	MaxDiscountAmount *string      `json:"max_discount_amount"`
	StartsAt          *time.Time   `json:"starts_at"`
	EndsAt            *time.Time   `json:"ends_at"`
	TotalUsageLimit   *int         `json:"total_usage_limit"`
	PerUserUsageLimit *int         `json:"per_user_usage_limit"`
	FirstPurchaseOnly bool         `json:"first_purchase_only" gorm:"not null;default:false"`
	Active            bool         `json:"active" gorm:"not null;default:true"`
	CreatedBy         string       `json:"created_by"`
	UpdatedBy         string       `json:"updated_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// DiscountCodeService scopes a code to specific services.
type DiscountCodeService struct {
	DiscountCodeID snowflake.ID `json:"discount_code_id" gorm:"primaryKey;autoIncrement:false"`
	ServiceID      snowflake.ID `json:"service_id" gorm:"primaryKey;autoIncrement:false"`
}

func (DiscountCodeService) TableName() string { return "discount_code_services" }

// DiscountRedemption records one successful application of a code to an
// approved order. Written only inside the approval transaction; draft-time
// evaluation is provisional and never counts as usage.
type DiscountRedemption struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	DiscountCodeID snowflake.ID `json:"discount_code_id" gorm:"not null;index"`
	OrderID        snowflake.ID `json:"order_id" gorm:"not null;uniqueIndex"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;index"`
	ServiceID      snowflake.ID `json:"service_id" gorm:"not null"`
	DiscountAmount string       `json:"discount_amount" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (DiscountRedemption) TableName() string { return "discount_redemptions" }

type UsageCounts struct {
	Total   int
	PerUser int
}

// NormalizeCode is the canonical form codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ApprovedOrderChecker is the one question the evaluation needs from the
// order domain, kept narrow to avoid coupling the engines.
type ApprovedOrderChecker interface {
	HasApprovedOrder(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
}

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*DiscountCode, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DiscountCode, error)
	ScopeServiceIDs(ctx context.Context, db *gorm.DB, codeID snowflake.ID) ([]snowflake.ID, error)
	ReplaceScope(ctx context.Context, db *gorm.DB, codeID snowflake.ID, serviceIDs []snowflake.ID) error
	UsageCounts(ctx context.Context, db *gorm.DB, codeID, userID snowflake.ID) (UsageCounts, error)
	Insert(ctx context.Context, db *gorm.DB, code *DiscountCode) error
	Update(ctx context.Context, db *gorm.DB, code *DiscountCode) error
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *DiscountRedemption) error
}
