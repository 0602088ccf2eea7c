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
	ErrServiceNotFound = errors.New("service not found")
	ErrInvalidPrice    = errors.New("invalid service price")
	ErrInvalidDuration = errors.New("service duration must be positive")
)

// Service is a purchasable time-boxed offering. Deactivation hides it from new
// purchases but existing orders and subscriptions keep resolving it.
type Service struct {
	ID           snowflake.ID                `json:"id" gorm:"primaryKey"`
	Title        string                      `json:"title" gorm:"not null"`
	Price        string                      `json:"price" gorm:"not null"`
	Notes        string                      `json:"notes"`
	NeededFields datatypes.JSONSlice[string] `json:"needed_fields"`
	DurationDays int                         `json:"duration_days" gorm:"not null"`
	Active       bool                        `json:"active" gorm:"not null;default:true"`
	CreatedBy    string                      `json:"created_by"`
	UpdatedBy    string                      `json:"updated_by"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Service) TableName() string { return "services" }

type UpdateServiceInput struct {
	Title        *string
	Price        *string
	Notes        *string
	NeededFields []string
	DurationDays *int
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Service, error)
	// FindActiveByID only resolves services still open for purchase.
	FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Service, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Service, error)
	Insert(ctx context.Context, db *gorm.DB, svc *Service) error
	Update(ctx context.Context, db *gorm.DB, svc *Service) error
}

type AdminService interface {
	Create(ctx context.Context, actorID string, svc Service) (*Service, error)
	Update(ctx context.Context, actorID string, id snowflake.ID, input UpdateServiceInput) (*Service, error)
	Deactivate(ctx context.Context, actorID string, id snowflake.ID) error
}
