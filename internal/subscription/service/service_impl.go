package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

type GrantInput struct {
	UserID         snowflake.ID
	ServiceID      snowflake.ID
	OrderID        snowflake.ID
	FieldProfileID *snowflake.ID
	DurationDays   int
	Now            time.Time
}

// GrantOrExtend runs inside the approval transaction. An existing active
// subscription for the same (user, service, profile) whose end is still in
// the future is extended by adding the duration; otherwise a fresh
// subscription starts now. Different profiles never collide, which is what
// lets one user hold the same service for several target accounts.
func (s *Service) GrantOrExtend(ctx context.Context, tx *gorm.DB, in GrantInput) (*domain.Subscription, error) {
	existing, err := s.repo.FindActiveForProfile(ctx, tx, in.UserID, in.ServiceID, in.FieldProfileID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Extendable(in.Now) {
		existing.DurationDays += in.DurationDays
		existing.Status = domain.StatusActive
		existing.UpdatedAt = in.Now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	sub := &domain.Subscription{
		ID:             s.genID.Generate(),
		UserID:         in.UserID,
		ServiceID:      in.ServiceID,
		OrderID:        in.OrderID,
		FieldProfileID: in.FieldProfileID,
		StartedAt:      in.Now,
		DurationDays:   in.DurationDays,
		Status:         domain.StatusActive,
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}
	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ReconcileExpired flips every active subscription whose end has passed to
// expired and reports how many changed. Running it twice changes nothing the
// second time; it is invoked opportunistically before subscription-dependent
// reads and from the cron job.
func (s *Service) ReconcileExpired(ctx context.Context, now time.Time) (int, error) {
	active, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range active {
		sub := &active[i]
		if sub.End().After(now) {
			continue
		}
		sub.Status = domain.StatusExpired
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			return changed, err
		}
		changed++
	}

	if changed > 0 {
		s.log.Info("expired subscriptions reconciled", zap.Int("count", changed))
	}
	return changed, nil
}

// Subscribers resolves the distinct active subscriber user ids of a service.
func (s *Service) Subscribers(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]snowflake.ID, error) {
	return s.repo.ListSubscriberUserIDs(ctx, db, serviceID)
}
