package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/credit/domain"
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

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	cfg      config.Config
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("credit.service"),
		genID:    p.GenID,
		cfg:      p.Cfg,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

// Balance reads the user's current balance in minor units without locking.
// Use the locked variants inside a transaction when the balance is about to
// change.
func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	entry, err := s.repo.LatestEntry(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	return s.entryBalance(entry)
}

// Spend appends a negative entry inside tx after a locked balance read. The
// caller owns the transaction; a failed precondition aborts it with no
// partial writes.
func (s *Service) Spend(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amountMinor int64, orderID snowflake.ID, actorID string) error {
	entry, err := s.repo.LatestEntryForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	balance, err := s.entryBalance(entry)
	if err != nil {
		return err
	}
	if balance < amountMinor {
		return domain.ErrInsufficientCredit
	}

	oid := orderID
	return s.repo.Append(ctx, tx, &domain.LedgerEntry{
		ID:           s.genID.Generate(),
		UserID:       userID,
		Type:         domain.EntrySpend,
		Amount:       money.Format(-amountMinor, s.cfg.PriceDecimals),
		BalanceAfter: money.Format(balance-amountMinor, s.cfg.PriceDecimals),
		OrderID:      &oid,
		Note:         "Credit used for order",
		CreatedBy:    actorID,
		CreatedAt:    s.clock.Now(ctx),
	})
}

// Reward appends a positive entry inside tx (referral rewards during order
// approval).
func (s *Service) Reward(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amountMinor int64, orderID snowflake.ID, note, actorID string) error {
	entry, err := s.repo.LatestEntryForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	balance, err := s.entryBalance(entry)
	if err != nil {
		return err
	}

	oid := orderID
	return s.repo.Append(ctx, tx, &domain.LedgerEntry{
		ID:           s.genID.Generate(),
		UserID:       userID,
		Type:         domain.EntryReferralReward,
		Amount:       money.Format(amountMinor, s.cfg.PriceDecimals),
		BalanceAfter: money.Format(balance+amountMinor, s.cfg.PriceDecimals),
		OrderID:      &oid,
		Note:         note,
		CreatedBy:    actorID,
		CreatedAt:    s.clock.Now(ctx),
	})
}

// AdminAdjust applies a signed delta to a user's balance. Negative
// adjustments may not take the balance below zero.
func (s *Service) AdminAdjust(ctx context.Context, userID snowflake.ID, deltaMinor int64, note, actorID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.LatestEntryForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance, err := s.entryBalance(entry)
		if err != nil {
			return err
		}
		if balance+deltaMinor < 0 {
			return apperr.Validation(domain.ErrInsufficientCredit)
		}

		return s.repo.Append(ctx, tx, &domain.LedgerEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Type:         domain.EntryAdminAdjustment,
			Amount:       money.Format(deltaMinor, s.cfg.PriceDecimals),
			BalanceAfter: money.Format(balance+deltaMinor, s.cfg.PriceDecimals),
			Note:         note,
			CreatedBy:    actorID,
			CreatedAt:    s.clock.Now(ctx),
		})
	})
	if err != nil {
		return err
	}

	return s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionCreditAdjust, "user", userID.String(), map[string]any{
		"delta": money.Format(deltaMinor, s.cfg.PriceDecimals),
		"note":  note,
	})
}

func (s *Service) entryBalance(entry *domain.LedgerEntry) (int64, error) {
	if entry == nil {
		return 0, nil
	}
	balance, err := money.Parse(entry.BalanceAfter, s.cfg.PriceDecimals)
	if err != nil {
		return 0, err
	}
	return balance, nil
}
