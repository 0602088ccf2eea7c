package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Privileged actions recorded in the audit trail.
const (
	ActionOrderApprove       = "order.approve"
	ActionOrderDismiss       = "order.dismiss"
	ActionServiceCreate      = "service.create"
	ActionServiceUpdate      = "service.update"
	ActionServiceDeactivate  = "service.deactivate"
	ActionDiscountCreate     = "discount.create"
	ActionDiscountUpdate     = "discount.update"
	ActionDiscountDeactivate = "discount.deactivate"
	ActionNotificationSend   = "notification.send"
	ActionNotificationFail   = "notification.fail"
	ActionCreditAdjust       = "credit.adjust"
)

// AuditLog rows are append-only; nothing ever updates or deletes them.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorID    string            `json:"actor_id" gorm:"not null;index"`
	Action     string            `json:"action" gorm:"not null;index"`
	EntityType string            `json:"entity_type" gorm:"not null"`
	EntityID   string            `json:"entity_id" gorm:"not null;index"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	// Record writes one audit row through db, which may be a transaction so
	// the entry commits atomically with the action it describes.
	Record(ctx context.Context, db *gorm.DB, actorID, action, entityType, entityID string, metadata map[string]any) error
}
