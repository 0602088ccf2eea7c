package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	auditservice "github.com/subdesklabs/subdesk/internal/audit/service"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	catalogrepository "github.com/subdesklabs/subdesk/internal/catalog/repository"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	creditdomain "github.com/subdesklabs/subdesk/internal/credit/domain"
	creditrepository "github.com/subdesklabs/subdesk/internal/credit/repository"
	creditservice "github.com/subdesklabs/subdesk/internal/credit/service"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	discountrepository "github.com/subdesklabs/subdesk/internal/discount/repository"
	discountservice "github.com/subdesklabs/subdesk/internal/discount/service"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	notificationrepository "github.com/subdesklabs/subdesk/internal/notification/repository"
	notificationservice "github.com/subdesklabs/subdesk/internal/notification/service"
	"github.com/subdesklabs/subdesk/internal/order/domain"
	"github.com/subdesklabs/subdesk/internal/order/repository"
	referraldomain "github.com/subdesklabs/subdesk/internal/referral/domain"
	referralrepository "github.com/subdesklabs/subdesk/internal/referral/repository"
	referralservice "github.com/subdesklabs/subdesk/internal/referral/service"
	subscriptiondomain "github.com/subdesklabs/subdesk/internal/subscription/domain"
	subscriptionrepository "github.com/subdesklabs/subdesk/internal/subscription/repository"
	subscriptionservice "github.com/subdesklabs/subdesk/internal/subscription/service"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	userrepository "github.com/subdesklabs/subdesk/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeQueue struct{ calls int }

func (q *fakeQueue) Enqueue(context.Context, snowflake.ID, time.Time) (string, error) {
	q.calls++
	return "qm-1", nil
}

type fakeMessenger struct{ sent []string }

func (m *fakeMessenger) Send(_ context.Context, chatID, text string) error {
	m.sent = append(m.sent, chatID+": "+text)
	return nil
}

type fixture struct {
	svc       *Service
	creditSvc *creditservice.Service
	refSvc    *referralservice.Service
	db        *gorm.DB
	node      *snowflake.Node
	queue     *fakeQueue
	messenger *fakeMessenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{}, &userdomain.FieldProfile{},
		&catalogdomain.Service{},
		&discountdomain.DiscountCode{}, &discountdomain.DiscountCodeService{}, &discountdomain.DiscountRedemption{},
		&creditdomain.LedgerEntry{},
		&referraldomain.Referral{},
		&subscriptiondomain.Subscription{},
		&domain.Order{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.Config{
		PriceDecimals:            2,
		ReferralPercent:          10,
		ReminderDaysBeforeExpiry: 3,
		MaxProofSizeMB:           5,
		AdminIDs:                 []string{"admin-chat"},
	}
	fixedClock := clock.Fixed{T: testNow}

	auditSvc := auditservice.NewService(auditservice.ServiceParam{Log: log, GenID: node, Clock: fixedClock})
	orderRepo := repository.Provide()
	userRepo := userrepository.Provide()
	catalogRepo := catalogrepository.Provide()
	discountRepo := discountrepository.Provide()

	creditSvc := creditservice.NewService(creditservice.ServiceParam{
		DB: db, Log: log, GenID: node, Cfg: cfg, Clock: fixedClock,
		Repo: creditrepository.Provide(), AuditSvc: auditSvc,
	})
	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixedClock,
		Repo: subscriptionrepository.Provide(),
	})
	refSvc := referralservice.NewService(referralservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixedClock,
		Repo: referralrepository.Provide(), UserRepo: userRepo,
	})
	discountSvc := discountservice.NewService(discountservice.ServiceParam{
		DB: db, Log: log, GenID: node, Cfg: cfg, Clock: fixedClock,
		Repo: discountRepo, Guard: idempotency.NewGuard(redisClient, log),
		Redis: redisClient, OrderChecker: orderRepo, AuditSvc: auditSvc,
	})

	f := &fixture{
		creditSvc: creditSvc,
		refSvc:    refSvc,
		db:        db,
		node:      node,
		queue:     &fakeQueue{},
		messenger: &fakeMessenger{},
	}
	notifSvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixedClock, Cfg: cfg,
		Repo: notificationrepository.Provide(), UserRepo: userRepo,
		Queue: f.queue, Messenger: f.messenger,
		Subscribers: subSvc, AuditSvc: auditSvc,
	})
	f.svc = NewService(ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixedClock, Cfg: cfg,
		Repo: orderRepo, CatalogRepo: catalogRepo, UserRepo: userRepo,
		DiscountSvc: discountSvc, DiscountRepo: discountRepo,
		CreditSvc: creditSvc, SubscriptionSvc: subSvc,
		ReferralSvc: refSvc, NotificationSvc: notifSvc, AuditSvc: auditSvc,
	})
	return f
}

func (f *fixture) seedUser(t *testing.T, chatID, token string) *userdomain.User {
	t.Helper()
	user := &userdomain.User{
		ID:            f.node.Generate(),
		ChatID:        chatID,
		Username:      "user-" + chatID,
		ReferralToken: token,
		CreatedAt:     testNow,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) seedService(t *testing.T, price string, days int) *catalogdomain.Service {
	t.Helper()
	svc := &catalogdomain.Service{
		ID:           f.node.Generate(),
		Title:        "Premium",
		Price:        price,
		DurationDays: days,
		Active:       true,
		CreatedAt:    testNow,
	}
	require.NoError(t, f.db.Create(svc).Error)
	return svc
}

func (f *fixture) seedPercentCode(t *testing.T, code, percent string) *discountdomain.DiscountCode {
	t.Helper()
	dc := &discountdomain.DiscountCode{
		ID:        f.node.Generate(),
		Code:      discountdomain.NormalizeCode(code),
		Type:      discountdomain.TypePercent,
		Amount:    percent,
		Active:    true,
		CreatedAt: testNow,
	}
	require.NoError(t, f.db.Create(dc).Error)
	return dc
}

func (f *fixture) grantCredit(t *testing.T, userID snowflake.ID, minor int64) {
	t.Helper()
	require.NoError(t, f.creditSvc.AdminAdjust(context.Background(), userID, minor, "seed", "admin-chat"))
}

func validProof(orderID, userID snowflake.ID) SubmitProofInput {
	return SubmitProofInput{
		OrderID:   orderID,
		UserID:    userID,
		FileID:    "file-1",
		MimeType:  "image/jpeg",
		SizeBytes: 1024,
	}
}

func TestApprovalCriticalPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.seedUser(t, "chat-inviter", "tok-inviter")
	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	linked, err := f.refSvc.LinkIfEligible(ctx, buyer.ID, "tok-inviter")
	require.NoError(t, err)
	require.True(t, linked)

	svc := f.seedService(t, "100.00", 30)
	f.seedPercentCode(t, "save20", "20")
	f.grantCredit(t, buyer.ID, 5000)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{
		UserID:       buyer.ID,
		ServiceID:    svc.ID,
		DiscountCode: "save20",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingProof, order.Status)
	require.Equal(t, "100.00", order.BasePrice)
	require.Equal(t, "20.00", order.DiscountAmount)
	require.Equal(t, "80.00", order.DiscountedAmount)
	require.Equal(t, "50.00", order.CreditAmount)
	require.Equal(t, "30.00", order.PayableAmount)
	require.NotNil(t, order.DiscountCodeID)

	order, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingAdminReview, order.Status)

	result, err := f.svc.Approve(ctx, order.ID, "admin-chat")
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, result.Order.Status)
	require.Equal(t, "admin-chat", result.Order.AdminActionBy)

	// subscription runs 30 days from approval
	sub := result.Subscription
	require.Equal(t, buyer.ID, sub.UserID)
	require.Equal(t, 30, sub.DurationDays)
	require.True(t, sub.End().Equal(testNow.AddDate(0, 0, 30)))

	// buyer's credit is fully consumed
	balance, err := f.creditSvc.Balance(ctx, buyer.ID)
	require.NoError(t, err)
	require.Zero(t, balance)

	// inviter earned 10% of the discounted amount
	inviterBalance, err := f.creditSvc.Balance(ctx, inviter.ID)
	require.NoError(t, err)
	require.Equal(t, int64(800), inviterBalance)

	// the code's usage is recorded exactly once
	var redemptions []discountdomain.DiscountRedemption
	require.NoError(t, f.db.Find(&redemptions, "order_id = ?", order.ID).Error)
	require.Len(t, redemptions, 1)
	require.Equal(t, "20.00", redemptions[0].DiscountAmount)

	var approveAudits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ? AND entity_id = ?", auditdomain.ActionOrderApprove, order.ID.String()).
		Count(&approveAudits).Error)
	require.Equal(t, int64(1), approveAudits)

	// approval message went out, reminder and end notifications are queued
	var notifications []notificationdomain.Notification
	require.NoError(t, f.db.Order("send_at ASC").Find(&notifications).Error)
	byKey := map[string]notificationdomain.Notification{}
	for _, n := range notifications {
		byKey[n.MessageKey] = n
	}
	require.Equal(t, notificationdomain.StatusSent, byKey[notificationdomain.KeyOrderQueuedAdmin].Status)
	require.Equal(t, notificationdomain.StatusSent, byKey[notificationdomain.KeyOrderApprovedUser].Status)

	reminder := byKey[notificationdomain.KeySubscriptionReminder]
	require.Equal(t, notificationdomain.StatusPending, reminder.Status)
	require.True(t, reminder.SendAt.Equal(testNow.AddDate(0, 0, 27)))

	ended := byKey[notificationdomain.KeySubscriptionEnded]
	require.Equal(t, notificationdomain.StatusPending, ended.Status)
	require.True(t, ended.SendAt.Equal(testNow.AddDate(0, 0, 30)))
	require.Equal(t, 2, f.queue.calls)
}

func TestApproveInsufficientCreditAbortsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)
	f.grantCredit(t, buyer.ID, 5000)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	require.Equal(t, "50.00", order.CreditAmount)
	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.NoError(t, err)

	// the balance moved between draft and approval
	require.NoError(t, f.creditSvc.AdminAdjust(ctx, buyer.ID, -5000, "drain", "admin-chat"))

	_, err = f.svc.Approve(ctx, order.ID, "admin-chat")
	require.ErrorIs(t, err, creditdomain.ErrInsufficientCredit)

	// nothing from the transaction stuck
	reloaded, repoErr := repository.Provide().FindByID(ctx, f.db, order.ID)
	require.NoError(t, repoErr)
	require.Equal(t, domain.StatusAwaitingAdminReview, reloaded.Status)

	var subCount int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).Count(&subCount).Error)
	require.Zero(t, subCount)

	var spendCount int64
	require.NoError(t, f.db.Model(&creditdomain.LedgerEntry{}).
		Where("type = ?", creditdomain.EntrySpend).Count(&spendCount).Error)
	require.Zero(t, spendCount)
}

func TestApproveRequiresReviewState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingProof, order.Status)

	_, err = f.svc.Approve(ctx, order.ID, "admin-chat")
	require.ErrorIs(t, err, domain.ErrOrderNotReady)
	require.True(t, apperr.IsKind(err, apperr.KindStateConflict))

	_, err = f.svc.Approve(ctx, f.node.Generate(), "admin-chat")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestApproveTwiceIsStateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, order.ID, "admin-chat")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, order.ID, "admin-chat")
	require.ErrorIs(t, err, domain.ErrOrderNotReady)
}

func TestZeroPayableSkipsProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "40.00", 30)
	f.grantCredit(t, buyer.ID, 5000)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingAdminReview, order.Status)
	require.Equal(t, "40.00", order.CreditAmount)
	require.Equal(t, "0.00", order.PayableAmount)

	// the admin alert fired without any proof submission
	require.NotEmpty(t, f.messenger.sent)
	require.Contains(t, f.messenger.sent[0], "admin-chat: ")
}

func TestCreateDraftRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	_, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID, DiscountCode: "NOPE"})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	inactive := f.seedService(t, "10.00", 30)
	require.NoError(t, f.db.Model(inactive).Update("active", false).Error)
	_, err = f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: inactive.ID})
	require.ErrorIs(t, err, catalogdomain.ErrServiceNotFound)

	withFields := f.seedService(t, "10.00", 30)
	require.NoError(t, f.db.Model(withFields).Update("needed_fields", `["account"]`).Error)
	_, err = f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: withFields.ID})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSubmitProofGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	other := f.seedUser(t, "chat-other", "tok-other")
	svc := f.seedService(t, "100.00", 30)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)

	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, other.ID))
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	in := validProof(order.ID, buyer.ID)
	in.MimeType = "application/pdf"
	_, err = f.svc.SubmitProof(ctx, in)
	require.ErrorIs(t, err, domain.ErrProofInvalidType)

	in = validProof(order.ID, buyer.ID)
	in.SizeBytes = 6 * 1024 * 1024
	_, err = f.svc.SubmitProof(ctx, in)
	require.ErrorIs(t, err, domain.ErrProofTooLarge)

	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestDismissNotifiesBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(ctx, validProof(order.ID, buyer.ID))
	require.NoError(t, err)

	dismissed, err := f.svc.Dismiss(ctx, order.ID, "admin-chat", "proof unreadable")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDismissed, dismissed.Status)
	require.Equal(t, "proof unreadable", dismissed.DismissReason)

	last := f.messenger.sent[len(f.messenger.sent)-1]
	require.Contains(t, last, "chat-buyer: ")
	require.Contains(t, last, "proof unreadable")

	var dismissAudits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionOrderDismiss).Count(&dismissAudits).Error)
	require.Equal(t, int64(1), dismissAudits)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	order, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, order.ID, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Cancel(ctx, order.ID, buyer.ID)
	require.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestApprovalExtendsRunningSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedUser(t, "chat-buyer", "tok-buyer")
	svc := f.seedService(t, "100.00", 30)

	first, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(ctx, validProof(first.ID, buyer.ID))
	require.NoError(t, err)
	firstResult, err := f.svc.Approve(ctx, first.ID, "admin-chat")
	require.NoError(t, err)

	second, err := f.svc.CreateDraft(ctx, CreateDraftInput{UserID: buyer.ID, ServiceID: svc.ID})
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(ctx, validProof(second.ID, buyer.ID))
	require.NoError(t, err)
	secondResult, err := f.svc.Approve(ctx, second.ID, "admin-chat")
	require.NoError(t, err)

	require.Equal(t, firstResult.Subscription.ID, secondResult.Subscription.ID)
	require.Equal(t, 60, secondResult.Subscription.DurationDays)
}
