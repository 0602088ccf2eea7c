package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	"github.com/subdesklabs/subdesk/internal/catalog/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cfg      config.Config
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	cfg      config.Config
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) domain.AdminService {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		genID:    p.GenID,
		cfg:      p.Cfg,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, actorID string, svc domain.Service) (*domain.Service, error) {
	if _, err := money.Parse(svc.Price, s.cfg.PriceDecimals); err != nil {
		return nil, apperr.Validation(fmt.Errorf("%w: %q", domain.ErrInvalidPrice, svc.Price))
	}
	if svc.DurationDays <= 0 {
		return nil, apperr.Validation(domain.ErrInvalidDuration)
	}

	now := s.clock.Now(ctx)
	svc.ID = s.genID.Generate()
	svc.Active = true
	svc.CreatedBy = actorID
	svc.UpdatedBy = actorID
	svc.CreatedAt = now
	svc.UpdatedAt = now

	if err := s.repo.Insert(ctx, s.db, &svc); err != nil {
		return nil, err
	}

	_ = s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionServiceCreate, "service", svc.ID.String(), map[string]any{
		"title": svc.Title,
		"price": svc.Price,
	})

	return &svc, nil
}

func (s *service) Update(ctx context.Context, actorID string, id snowflake.ID, input domain.UpdateServiceInput) (*domain.Service, error) {
	svc, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}

	if input.Title != nil {
		svc.Title = *input.Title
	}
	if input.Price != nil {
		if _, err := money.Parse(*input.Price, s.cfg.PriceDecimals); err != nil {
			return nil, apperr.Validation(fmt.Errorf("%w: %q", domain.ErrInvalidPrice, *input.Price))
		}
		svc.Price = *input.Price
	}
	if input.Notes != nil {
		svc.Notes = *input.Notes
	}
	if input.NeededFields != nil {
		svc.NeededFields = input.NeededFields
	}
	if input.DurationDays != nil {
		if *input.DurationDays <= 0 {
			return nil, apperr.Validation(domain.ErrInvalidDuration)
		}
		svc.DurationDays = *input.DurationDays
	}
	svc.UpdatedBy = actorID
	svc.UpdatedAt = s.clock.Now(ctx)

	if err := s.repo.Update(ctx, s.db, svc); err != nil {
		return nil, err
	}

	_ = s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionServiceUpdate, "service", svc.ID.String(), nil)

	return svc, nil
}

func (s *service) Deactivate(ctx context.Context, actorID string, id snowflake.ID) error {
	svc, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if svc == nil {
		return domain.ErrServiceNotFound
	}

	svc.Active = false
	svc.UpdatedBy = actorID
	svc.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, svc); err != nil {
		return err
	}

	return s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionServiceDeactivate, "service", svc.ID.String(), nil)
}
