package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/discount/domain"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	"github.com/subdesklabs/subdesk/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Cfg          config.Config
	Clock        clock.Clock
	Repo         domain.Repository
	Guard        *idempotency.Guard
	Redis        *goredis.Client
	OrderChecker domain.ApprovedOrderChecker
	AuditSvc     auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	cfg          config.Config
	clock        clock.Clock
	repo         domain.Repository
	guard        *idempotency.Guard
	redis        *goredis.Client
	orderChecker domain.ApprovedOrderChecker
	auditSvc     auditdomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("discount.service"),
		genID:        p.GenID,
		cfg:          p.Cfg,
		clock:        p.Clock,
		repo:         p.Repo,
		guard:        p.Guard,
		redis:        p.Redis,
		orderChecker: p.OrderChecker,
		auditSvc:     p.AuditSvc,
	}
}

type EvaluateCodeInput struct {
	UserID      snowflake.ID
	ServiceID   snowflake.ID
	Code        string
	BasePrice   string
	FieldValues map[string]string
}

// CodeDecision is what draft creation consumes. It is provisional; usage is
// only recorded when the order is approved.
type CodeDecision struct {
	OK            bool                `json:"ok"`
	Reason        domain.RejectReason `json:"reason,omitempty"`
	DiscountMinor int64               `json:"discount_minor"`
	CodeID        *snowflake.ID       `json:"code_id,omitempty"`
	Code          string              `json:"code,omitempty"`
}

// EvaluateCode resolves the rule, runs the pure evaluation, and pins the
// decision behind the idempotency guard so a retried buy attempt with
// identical inputs sees the same answer instead of re-racing the usage
// counters.
func (s *Service) EvaluateCode(ctx context.Context, in EvaluateCodeInput) (CodeDecision, error) {
	baseMinor, err := money.Parse(in.BasePrice, s.cfg.PriceDecimals)
	if err != nil {
		return CodeDecision{}, apperr.Validation(err)
	}

	normalized := domain.NormalizeCode(in.Code)
	fingerprint := idempotency.Fingerprint(map[string]any{
		"user_id":      in.UserID.String(),
		"service_id":   in.ServiceID.String(),
		"code":         normalized,
		"field_values": in.FieldValues,
		"base_price":   in.BasePrice,
	})
	resultKey := "discount:apply:result:" + fingerprint

	reserved, err := s.guard.ReserveDiscountAttempt(ctx, fingerprint)
	if err != nil {
		// Redis being down degrades to a fresh evaluation, not a failure.
		s.log.Warn("discount attempt reservation failed", zap.Error(err))
		reserved = true
	}
	if !reserved {
		if cached, ok := s.cachedDecision(ctx, resultKey); ok {
			return cached, nil
		}
	}

	decision, err := s.evaluateFresh(ctx, in.UserID, in.ServiceID, normalized, baseMinor)
	if err != nil {
		return CodeDecision{}, err
	}

	s.cacheDecision(ctx, resultKey, decision)
	return decision, nil
}

func (s *Service) evaluateFresh(ctx context.Context, userID, serviceID snowflake.ID, normalized string, baseMinor int64) (CodeDecision, error) {
	rule, err := s.repo.FindByCode(ctx, s.db, normalized)
	if err != nil {
		return CodeDecision{}, err
	}

	var scope []snowflake.ID
	usage := domain.UsageCounts{}
	if rule != nil {
		if scope, err = s.repo.ScopeServiceIDs(ctx, s.db, rule.ID); err != nil {
			return CodeDecision{}, err
		}
		if usage, err = s.repo.UsageCounts(ctx, s.db, rule.ID, userID); err != nil {
			return CodeDecision{}, err
		}
	}

	hasApproved, err := s.orderChecker.HasApprovedOrder(ctx, s.db, userID)
	if err != nil {
		return CodeDecision{}, err
	}

	evaluation := domain.Evaluate(domain.EvaluationInput{
		Rule:                  rule,
		ScopeServiceIDs:       scope,
		TargetServiceID:       serviceID,
		OrderBaseMinor:        baseMinor,
		Now:                   s.clock.Now(ctx),
		UsageTotal:            usage.Total,
		UsagePerUser:          usage.PerUser,
		UserHasApprovedOrders: hasApproved,
		PriceDecimals:         s.cfg.PriceDecimals,
	})

	if !evaluation.OK {
		return CodeDecision{Reason: evaluation.Reason}, nil
	}

	codeID := rule.ID
	return CodeDecision{
		OK:            true,
		DiscountMinor: evaluation.DiscountMinor,
		CodeID:        &codeID,
		Code:          rule.Code,
	}, nil
}

func (s *Service) cachedDecision(ctx context.Context, key string) (CodeDecision, bool) {
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.log.Warn("discount decision cache read failed", zap.Error(err))
		}
		return CodeDecision{}, false
	}

	var decision CodeDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return CodeDecision{}, false
	}
	return decision, true
}

func (s *Service) cacheDecision(ctx context.Context, key string, decision CodeDecision) {
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, raw, idempotency.DiscountAttemptTTL).Err(); err != nil {
		s.log.Warn("discount decision cache write failed", zap.Error(err))
	}
}

type CreateCodeInput struct {
	Code              string
	Type              domain.DiscountType
	Amount            string
	MinOrderAmount    *string
	MaxDiscountAmount *string
	StartsAt          *time.Time
	EndsAt            *time.Time
	TotalUsageLimit   *int
	PerUserUsageLimit *int
	FirstPurchaseOnly bool
	ServiceIDs        []snowflake.ID
}

func (s *Service) Create(ctx context.Context, actorID string, in CreateCodeInput) (*domain.DiscountCode, error) {
	if err := s.validateAmounts(in.Type, in.Amount, in.MinOrderAmount, in.MaxDiscountAmount); err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	code := &domain.DiscountCode{
		ID:                s.genID.Generate(),
		Code:              domain.NormalizeCode(in.Code),
		Type:              in.Type,
		Amount:            in.Amount,
		MinOrderAmount:    in.MinOrderAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		StartsAt:          in.StartsAt,
		EndsAt:            in.EndsAt,
		TotalUsageLimit:   in.TotalUsageLimit,
		PerUserUsageLimit: in.PerUserUsageLimit,
		FirstPurchaseOnly: in.FirstPurchaseOnly,
		Active:            true,
		CreatedBy:         actorID,
		UpdatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, code); err != nil {
			return err
		}
		return s.repo.ReplaceScope(ctx, tx, code.ID, in.ServiceIDs)
	})
	if err != nil {
		return nil, err
	}

	_ = s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionDiscountCreate, "discount_code", code.ID.String(), map[string]any{
		"code": code.Code,
		"type": string(code.Type),
	})

	return code, nil
}

type UpdateCodeInput struct {
	Amount            *string
	MinOrderAmount    *string
	MaxDiscountAmount *string
	StartsAt          *time.Time
	EndsAt            *time.Time
	TotalUsageLimit   *int
	PerUserUsageLimit *int
	FirstPurchaseOnly *bool
	ServiceIDs        []snowflake.ID
}

func (s *Service) Update(ctx context.Context, actorID string, id snowflake.ID, in UpdateCodeInput) (*domain.DiscountCode, error) {
	code, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrDiscountNotFound
	}

	if in.Amount != nil {
		code.Amount = *in.Amount
	}
	if in.MinOrderAmount != nil {
		code.MinOrderAmount = in.MinOrderAmount
	}
	if in.MaxDiscountAmount != nil {
		code.MaxDiscountAmount = in.MaxDiscountAmount
	}
	if in.StartsAt != nil {
		code.StartsAt = in.StartsAt
	}
	if in.EndsAt != nil {
		code.EndsAt = in.EndsAt
	}
	if in.TotalUsageLimit != nil {
		code.TotalUsageLimit = in.TotalUsageLimit
	}
	if in.PerUserUsageLimit != nil {
		code.PerUserUsageLimit = in.PerUserUsageLimit
	}
	if in.FirstPurchaseOnly != nil {
		code.FirstPurchaseOnly = *in.FirstPurchaseOnly
	}
	if err := s.validateAmounts(code.Type, code.Amount, code.MinOrderAmount, code.MaxDiscountAmount); err != nil {
		return nil, err
	}
	code.UpdatedBy = actorID
	code.UpdatedAt = s.clock.Now(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, code); err != nil {
			return err
		}
		if in.ServiceIDs != nil {
			return s.repo.ReplaceScope(ctx, tx, code.ID, in.ServiceIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionDiscountUpdate, "discount_code", code.ID.String(), nil)

	return code, nil
}

func (s *Service) Deactivate(ctx context.Context, actorID string, id snowflake.ID) error {
	code, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if code == nil {
		return domain.ErrDiscountNotFound
	}

	code.Active = false
	code.UpdatedBy = actorID
	code.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, code); err != nil {
		return err
	}

	return s.auditSvc.Record(ctx, s.db, actorID, auditdomain.ActionDiscountDeactivate, "discount_code", id.String(), nil)
}

func (s *Service) validateAmounts(discountType domain.DiscountType, amount string, minOrder, maxDiscount *string) error {
	if discountType == domain.TypeFixed {
		if _, err := money.Parse(amount, s.cfg.PriceDecimals); err != nil {
			return apperr.Validation(fmt.Errorf("%w: %q", domain.ErrInvalidAmount, amount))
		}
	}
	for _, v := range []*string{minOrder, maxDiscount} {
		if v == nil {
			continue
		}
		if _, err := money.Parse(*v, s.cfg.PriceDecimals); err != nil {
			return apperr.Validation(fmt.Errorf("%w: %q", domain.ErrInvalidAmount, *v))
		}
	}
	return nil
}
