package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/audit/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *service) Record(ctx context.Context, db *gorm.DB, actorID, action, entityType, entityID string, metadata map[string]any) error {
	entry := domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		CreatedAt:  s.clock.Now(ctx),
	}

	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Error("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return err
	}
	return nil
}
