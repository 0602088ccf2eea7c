package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	creditservice "github.com/subdesklabs/subdesk/internal/credit/service"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	discountservice "github.com/subdesklabs/subdesk/internal/discount/service"
	"github.com/subdesklabs/subdesk/internal/money"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	notificationservice "github.com/subdesklabs/subdesk/internal/notification/service"
	"github.com/subdesklabs/subdesk/internal/order/domain"
	"github.com/subdesklabs/subdesk/internal/pricing"
	referralservice "github.com/subdesklabs/subdesk/internal/referral/service"
	subscriptiondomain "github.com/subdesklabs/subdesk/internal/subscription/domain"
	subscriptionservice "github.com/subdesklabs/subdesk/internal/subscription/service"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type ServiceParam struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Cfg             config.Config
	Repo            domain.Repository
	CatalogRepo     catalogdomain.Repository
	UserRepo        userdomain.Repository
	DiscountSvc     *discountservice.Service
	DiscountRepo    discountdomain.Repository
	CreditSvc       *creditservice.Service
	SubscriptionSvc *subscriptionservice.Service
	ReferralSvc     *referralservice.Service
	NotificationSvc *notificationservice.Service
	AuditSvc        auditdomain.Service
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	cfg             config.Config
	repo            domain.Repository
	catalogRepo     catalogdomain.Repository
	userRepo        userdomain.Repository
	discountSvc     *discountservice.Service
	discountRepo    discountdomain.Repository
	creditSvc       *creditservice.Service
	subscriptionSvc *subscriptionservice.Service
	referralSvc     *referralservice.Service
	notificationSvc *notificationservice.Service
	auditSvc        auditdomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("order.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		cfg:             p.Cfg,
		repo:            p.Repo,
		catalogRepo:     p.CatalogRepo,
		userRepo:        p.UserRepo,
		discountSvc:     p.DiscountSvc,
		discountRepo:    p.DiscountRepo,
		creditSvc:       p.CreditSvc,
		subscriptionSvc: p.SubscriptionSvc,
		referralSvc:     p.ReferralSvc,
		notificationSvc: p.NotificationSvc,
		auditSvc:        p.AuditSvc,
	}
}

type CreateDraftInput struct {
	UserID         snowflake.ID
	ServiceID      snowflake.ID
	FieldProfileID *snowflake.ID
	FieldValues    map[string]string
	DiscountCode   string
}

// CreateDraft prices the purchase and freezes the result on the order. The
// snapshot never changes afterwards; approval settles exactly what was quoted
// here. An order with nothing left to pay skips proof collection and goes
// straight to the review queue.
func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (*domain.Order, error) {
	user, err := s.userRepo.FindByID(ctx, s.db, in.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.Validation(userdomain.ErrUserNotFound)
	}

	svc, err := s.catalogRepo.FindActiveByID(ctx, s.db, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, apperr.Validation(catalogdomain.ErrServiceNotFound)
	}

	for _, name := range svc.NeededFields {
		if in.FieldValues[name] == "" {
			return nil, apperr.Validationf("missing required field %q", name)
		}
	}

	baseMinor, err := money.Parse(svc.Price, s.cfg.PriceDecimals)
	if err != nil {
		return nil, err
	}

	var decision discountservice.CodeDecision
	if in.DiscountCode != "" {
		decision, err = s.discountSvc.EvaluateCode(ctx, discountservice.EvaluateCodeInput{
			UserID:      in.UserID,
			ServiceID:   in.ServiceID,
			Code:        in.DiscountCode,
			BasePrice:   svc.Price,
			FieldValues: in.FieldValues,
		})
		if err != nil {
			return nil, err
		}
		if !decision.OK {
			return nil, apperr.Validationf("discount code rejected: %s", decision.Reason)
		}
	}

	balance, err := s.creditSvc.Balance(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	quote := pricing.Calculate(baseMinor, decision.DiscountMinor, balance)
	now := s.clock.Now(ctx)

	fieldValues := datatypes.JSONMap{}
	for name, value := range in.FieldValues {
		fieldValues[name] = value
	}

	order := &domain.Order{
		ID:               s.genID.Generate(),
		UserID:           in.UserID,
		ServiceID:        in.ServiceID,
		FieldProfileID:   in.FieldProfileID,
		FieldValues:      fieldValues,
		Status:           domain.StatusAwaitingProof,
		BasePrice:        money.Format(quote.BaseMinor, s.cfg.PriceDecimals),
		DiscountAmount:   money.Format(quote.DiscountMinor, s.cfg.PriceDecimals),
		DiscountedAmount: money.Format(quote.DiscountedMinor, s.cfg.PriceDecimals),
		CreditAmount:     money.Format(quote.CreditUsedMinor, s.cfg.PriceDecimals),
		PayableAmount:    money.Format(quote.PayableMinor, s.cfg.PriceDecimals),
		DiscountCodeID:   decision.CodeID,
		DiscountCode:     decision.Code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if quote.PayableMinor == 0 {
		order.Status = domain.StatusAwaitingAdminReview
	}

	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	s.log.Info("order drafted",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.String("payable", order.PayableAmount),
		zap.String("status", string(order.Status)))

	if order.Status == domain.StatusAwaitingAdminReview {
		s.alertAdmins(ctx, order, svc.Title, user.Username)
	}
	return order, nil
}

type SubmitProofInput struct {
	OrderID   snowflake.ID
	UserID    snowflake.ID
	FileID    string
	MimeType  string
	SizeBytes int64
}

// SubmitProof attaches a payment proof and moves the order into the admin
// review queue. Only the order's owner can submit, and only from
// awaiting_proof.
func (s *Service) SubmitProof(ctx context.Context, in SubmitProofInput) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.UserID != in.UserID {
		return nil, apperr.Authorization(fmt.Errorf("order %s belongs to another user", order.ID))
	}
	if order.Status != domain.StatusAwaitingProof {
		return nil, apperr.StateConflict(fmt.Errorf("%w: cannot submit proof from %s", domain.ErrStateConflict, order.Status))
	}

	maxBytes := int64(s.cfg.MaxProofSizeMB) * 1024 * 1024
	if err := domain.ValidateProof(in.FileID, in.MimeType, in.SizeBytes, maxBytes); err != nil {
		return nil, apperr.Validation(err)
	}

	now := s.clock.Now(ctx)
	order.ProofFileID = in.FileID
	order.ProofMimeType = in.MimeType
	order.ProofSizeBytes = in.SizeBytes
	order.ProofSubmittedAt = &now
	order.Status = domain.StatusAwaitingAdminReview
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, order); err != nil {
		return nil, err
	}

	svc, err := s.catalogRepo.FindByID(ctx, s.db, order.ServiceID)
	if err != nil || svc == nil {
		s.log.Warn("service lookup for admin alert failed", zap.Error(err))
		return order, nil
	}
	user, err := s.userRepo.FindByID(ctx, s.db, order.UserID)
	if err != nil || user == nil {
		s.log.Warn("user lookup for admin alert failed", zap.Error(err))
		return order, nil
	}
	s.alertAdmins(ctx, order, svc.Title, user.Username)
	return order, nil
}

type ApprovalResult struct {
	Order        *domain.Order
	Subscription *subscriptiondomain.Subscription
}

// Approve settles an order in one transaction: the status flip, the credit
// spend against a locked balance, the subscription grant or extension, the
// discount redemption, the referral reward and the audit entry commit
// together or not at all. Notifications go out after the commit and never
// undo it.
func (s *Service) Approve(ctx context.Context, orderID snowflake.ID, adminID string) (*ApprovalResult, error) {
	now := s.clock.Now(ctx)
	var (
		order *domain.Order
		sub   *subscriptiondomain.Subscription
		svc   *catalogdomain.Service
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.StatusAwaitingAdminReview {
			return apperr.StateConflict(fmt.Errorf("%w: status %s", domain.ErrOrderNotReady, order.Status))
		}

		svc, err = s.catalogRepo.FindByID(ctx, tx, order.ServiceID)
		if err != nil {
			return err
		}
		if svc == nil {
			return catalogdomain.ErrServiceNotFound
		}

		order.Status = domain.StatusApproved
		order.AdminActionBy = adminID
		order.AdminActionAt = &now
		order.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}

		creditMinor, err := money.Parse(order.CreditAmount, s.cfg.PriceDecimals)
		if err != nil {
			return err
		}
		if creditMinor > 0 {
			if err := s.creditSvc.Spend(ctx, tx, order.UserID, creditMinor, order.ID, adminID); err != nil {
				return err
			}
		}

		sub, err = s.subscriptionSvc.GrantOrExtend(ctx, tx, subscriptionservice.GrantInput{
			UserID:         order.UserID,
			ServiceID:      order.ServiceID,
			OrderID:        order.ID,
			FieldProfileID: order.FieldProfileID,
			DurationDays:   svc.DurationDays,
			Now:            now,
		})
		if err != nil {
			return err
		}

		discountMinor, err := money.Parse(order.DiscountAmount, s.cfg.PriceDecimals)
		if err != nil {
			return err
		}
		if order.DiscountCodeID != nil && discountMinor > 0 {
			err = s.discountRepo.InsertRedemption(ctx, tx, &discountdomain.DiscountRedemption{
				ID:             s.genID.Generate(),
				DiscountCodeID: *order.DiscountCodeID,
				OrderID:        order.ID,
				UserID:         order.UserID,
				ServiceID:      order.ServiceID,
				DiscountAmount: order.DiscountAmount,
				CreatedAt:      now,
			})
			if err != nil {
				return err
			}
		}

		if err := s.rewardInviter(ctx, tx, order, adminID); err != nil {
			return err
		}

		return s.auditSvc.Record(ctx, tx, adminID, auditdomain.ActionOrderApprove, "order", order.ID.String(), map[string]any{
			"subscription_id": sub.ID.String(),
			"payable":         order.PayableAmount,
			"credit_used":     order.CreditAmount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order approved",
		zap.String("order_id", order.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("admin_id", adminID))

	s.notifyApproval(ctx, order, sub, svc.Title, now)
	return &ApprovalResult{Order: order, Subscription: sub}, nil
}

// Dismiss declines an order under review and tells the buyer why.
func (s *Service) Dismiss(ctx context.Context, orderID snowflake.ID, adminID, reason string) (*domain.Order, error) {
	now := s.clock.Now(ctx)
	var (
		order *domain.Order
		svc   *catalogdomain.Service
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.StatusAwaitingAdminReview {
			return apperr.StateConflict(fmt.Errorf("%w: status %s", domain.ErrOrderNotReady, order.Status))
		}

		svc, err = s.catalogRepo.FindByID(ctx, tx, order.ServiceID)
		if err != nil {
			return err
		}

		order.Status = domain.StatusDismissed
		order.AdminActionBy = adminID
		order.AdminActionAt = &now
		order.DismissReason = reason
		order.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}

		return s.auditSvc.Record(ctx, tx, adminID, auditdomain.ActionOrderDismiss, "order", order.ID.String(), map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	title := ""
	if svc != nil {
		title = svc.Title
	}
	userID := order.UserID
	_, err = s.notificationSvc.SendNow(ctx, notificationservice.ScheduleInput{
		Audience:   notificationdomain.AudienceUser,
		UserID:     &userID,
		MessageKey: notificationdomain.KeyOrderDismissedUser,
		Payload:    map[string]any{"service_title": title, "reason": reason},
	})
	if err != nil {
		s.log.Warn("dismiss notification failed", zap.Error(err))
	}
	return order, nil
}

// Cancel lets the buyer abandon an order that has not been decided yet.
func (s *Service) Cancel(ctx context.Context, orderID, userID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, apperr.Authorization(fmt.Errorf("order %s belongs to another user", order.ID))
	}
	if order.Status.Terminal() {
		return nil, apperr.StateConflict(fmt.Errorf("%w: cannot cancel from %s", domain.ErrStateConflict, order.Status))
	}

	now := s.clock.Now(ctx)
	order.Status = domain.StatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) rewardInviter(ctx context.Context, tx *gorm.DB, order *domain.Order, adminID string) error {
	if s.cfg.ReferralPercent <= 0 {
		return nil
	}
	referral, err := s.referralSvc.InviterOf(ctx, tx, order.UserID)
	if err != nil {
		return err
	}
	if referral == nil {
		return nil
	}

	discountedMinor, err := money.Parse(order.DiscountedAmount, s.cfg.PriceDecimals)
	if err != nil {
		return err
	}
	reward := pricing.ReferralReward(discountedMinor, s.cfg.ReferralPercent)
	if reward <= 0 {
		return nil
	}
	return s.creditSvc.Reward(ctx, tx, referral.InviterUserID, reward, order.ID, "Referral reward", adminID)
}

// notifyApproval runs after the approval commit; failures here are logged and
// absorbed, never propagated back to the admin.
func (s *Service) notifyApproval(ctx context.Context, order *domain.Order, sub *subscriptiondomain.Subscription, serviceTitle string, now time.Time) {
	end := sub.End()
	userID := order.UserID
	payload := map[string]any{
		"service_title": serviceTitle,
		"end_date":      end.Format(dateLayout),
	}

	_, err := s.notificationSvc.SendNow(ctx, notificationservice.ScheduleInput{
		Audience:   notificationdomain.AudienceUser,
		UserID:     &userID,
		MessageKey: notificationdomain.KeyOrderApprovedUser,
		Payload:    payload,
	})
	if err != nil {
		s.log.Warn("approval notification failed", zap.Error(err))
	}

	reminderAt := end.AddDate(0, 0, -s.cfg.ReminderDaysBeforeExpiry)
	if reminderAt.After(now) {
		_, err = s.notificationSvc.Schedule(ctx, notificationservice.ScheduleInput{
			Audience:   notificationdomain.AudienceUser,
			UserID:     &userID,
			MessageKey: notificationdomain.KeySubscriptionReminder,
			Payload:    payload,
			SendAt:     reminderAt,
		})
		if err != nil {
			s.log.Warn("reminder scheduling failed", zap.Error(err))
		}
	}

	_, err = s.notificationSvc.Schedule(ctx, notificationservice.ScheduleInput{
		Audience:   notificationdomain.AudienceUser,
		UserID:     &userID,
		MessageKey: notificationdomain.KeySubscriptionEnded,
		Payload:    map[string]any{"service_title": serviceTitle},
		SendAt:     end,
	})
	if err != nil {
		s.log.Warn("end notification scheduling failed", zap.Error(err))
	}
}

func (s *Service) alertAdmins(ctx context.Context, order *domain.Order, serviceTitle, username string) {
	_, err := s.notificationSvc.SendNow(ctx, notificationservice.ScheduleInput{
		Audience:   notificationdomain.AudienceAdmins,
		MessageKey: notificationdomain.KeyOrderQueuedAdmin,
		Payload: map[string]any{
			"order_id":      order.ID.String(),
			"service_title": serviceTitle,
			"username":      username,
		},
	})
	if err != nil {
		s.log.Warn("admin alert failed", zap.Error(err))
	}
}
