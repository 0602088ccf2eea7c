package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/apperr"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	"github.com/subdesklabs/subdesk/internal/notification/domain"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        domain.Repository
	UserRepo    userdomain.Repository
	Queue       domain.Queue
	Messenger   domain.Messenger
	Subscribers domain.SubscriberResolver
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	repo        domain.Repository
	userRepo    userdomain.Repository
	queue       domain.Queue
	messenger   domain.Messenger
	subscribers domain.SubscriberResolver
	auditSvc    auditdomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		repo:        p.Repo,
		userRepo:    p.UserRepo,
		queue:       p.Queue,
		messenger:   p.Messenger,
		subscribers: p.Subscribers,
		auditSvc:    p.AuditSvc,
	}
}

type ScheduleInput struct {
	Audience   domain.Audience
	UserID     *snowflake.ID
	ServiceID  *snowflake.ID
	MessageKey string
	Payload    map[string]any
	SendAt     time.Time
	// SkipQueue keeps the notification out of the push queue; the caller
	// dispatches it inline.
	SkipQueue bool
}

// Schedule records a notification exactly once. The idempotency key is a
// fingerprint of the scheduling input; a second call with the same input
// returns the existing id without touching the queue again.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (snowflake.ID, error) {
	key := idempotency.Fingerprint(map[string]any{
		"audience":    string(in.Audience),
		"user_id":     idString(in.UserID),
		"service_id":  idString(in.ServiceID),
		"message_key": in.MessageKey,
		"payload":     in.Payload,
		"send_at":     in.SendAt.UTC().Format(time.RFC3339),
	})

	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	now := s.clock.Now(ctx)
	n := &domain.Notification{
		ID:             s.genID.Generate(),
		Audience:       in.Audience,
		UserID:         in.UserID,
		ServiceID:      in.ServiceID,
		MessageKey:     in.MessageKey,
		Payload:        in.Payload,
		SendAt:         in.SendAt.UTC(),
		Status:         domain.StatusPending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, n); err != nil {
		// A concurrent Schedule with identical input may have won the insert
		// between our lookup and here; the unique index on the idempotency key
		// settles the race in its favor.
		if winner, lookupErr := s.repo.FindByIdempotencyKey(ctx, s.db, key); lookupErr == nil && winner != nil {
			return winner.ID, nil
		}
		return 0, err
	}

	if !in.SkipQueue {
		queueMessageID, err := s.queue.Enqueue(ctx, n.ID, n.SendAt)
		if err != nil {
			return n.ID, apperr.External(fmt.Errorf("enqueue notification %s: %w", n.ID, err))
		}
		n.QueueMessageID = queueMessageID
		n.UpdatedAt = s.clock.Now(ctx)
		if err := s.repo.Update(ctx, s.db, n); err != nil {
			return n.ID, err
		}
	}

	s.log.Info("notification scheduled",
		zap.String("id", n.ID.String()),
		zap.String("message_key", n.MessageKey),
		zap.Time("send_at", n.SendAt))
	return n.ID, nil
}

// Dispatch delivers one pending notification. Everything that can go wrong
// with a delivery is absorbed into the row's failure state; the queue never
// sees an error it would retry a permanently-broken message for.
func (s *Service) Dispatch(ctx context.Context, id snowflake.ID, meta domain.DispatchMeta) error {
	n, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if n == nil {
		s.log.Warn("dispatch for unknown notification", zap.String("id", id.String()))
		return nil
	}
	if n.Status != domain.StatusPending {
		s.log.Debug("dispatch skipped, not pending",
			zap.String("id", id.String()), zap.String("status", string(n.Status)))
		return nil
	}

	tmpl, ok := domain.TemplateFor(n.MessageKey)
	if !ok {
		return s.markFailed(ctx, n, meta, fmt.Errorf("unknown message key %q", n.MessageKey))
	}
	if missing := tmpl.MissingFields(n.Payload); len(missing) > 0 {
		return s.markFailed(ctx, n, meta, fmt.Errorf("payload missing fields %v", missing))
	}

	chatIDs, err := s.resolveAudience(ctx, n)
	if err != nil {
		return s.markFailed(ctx, n, meta, err)
	}

	text := tmpl.Render(n.Payload)
	for _, chatID := range chatIDs {
		if err := s.messenger.Send(ctx, chatID, text); err != nil {
			return s.markFailed(ctx, n, meta, err)
		}
	}

	now := s.clock.Now(ctx)
	n.Status = domain.StatusSent
	n.SentAt = &now
	if meta.QueueMessageID != "" {
		n.QueueMessageID = meta.QueueMessageID
	}
	n.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, n); err != nil {
		return err
	}

	if err := s.auditSvc.Record(ctx, s.db, "system", auditdomain.ActionNotificationSend, "notification", n.ID.String(), map[string]any{
		"message_key": n.MessageKey,
		"audience":    string(n.Audience),
		"recipients":  len(chatIDs),
		"retry_count": meta.RetryCount,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	s.log.Info("notification sent",
		zap.String("id", n.ID.String()),
		zap.String("message_key", n.MessageKey),
		zap.Int("recipients", len(chatIDs)))
	return nil
}

// Cancel withdraws a pending notification. Sent, failed and cancelled rows are
// immutable.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) error {
	n, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if n == nil {
		return domain.ErrNotificationNotFound
	}
	if n.Status != domain.StatusPending {
		return apperr.StateConflict(domain.ErrNotPending)
	}

	n.Status = domain.StatusCancelled
	n.UpdatedAt = s.clock.Now(ctx)
	return s.repo.Update(ctx, s.db, n)
}

// SendNow schedules with the queue skipped and dispatches inline. Used for
// admin alerts and order decisions that should not wait for the queue.
func (s *Service) SendNow(ctx context.Context, in ScheduleInput) (snowflake.ID, error) {
	in.SkipQueue = true
	in.SendAt = s.clock.Now(ctx)
	id, err := s.Schedule(ctx, in)
	if err != nil {
		return id, err
	}
	return id, s.Dispatch(ctx, id, domain.DispatchMeta{})
}

func (s *Service) resolveAudience(ctx context.Context, n *domain.Notification) ([]string, error) {
	switch n.Audience {
	case domain.AudienceUser:
		if n.UserID == nil {
			return nil, fmt.Errorf("user audience without user id")
		}
		user, err := s.userRepo.FindByID(ctx, s.db, *n.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, userdomain.ErrUserNotFound
		}
		return []string{user.ChatID}, nil

	case domain.AudienceAll:
		users, err := s.userRepo.ListAll(ctx, s.db)
		if err != nil {
			return nil, err
		}
		chatIDs := make([]string, 0, len(users))
		for _, u := range users {
			chatIDs = append(chatIDs, u.ChatID)
		}
		return chatIDs, nil

	case domain.AudienceAdmins:
		return s.cfg.AdminIDs, nil

	case domain.AudienceServiceSubscribers:
		if n.ServiceID == nil {
			return nil, fmt.Errorf("subscriber audience without service id")
		}
		userIDs, err := s.subscribers.Subscribers(ctx, s.db, *n.ServiceID)
		if err != nil {
			return nil, err
		}
		chatIDs := make([]string, 0, len(userIDs))
		for _, userID := range userIDs {
			user, err := s.userRepo.FindByID(ctx, s.db, userID)
			if err != nil {
				return nil, err
			}
			if user != nil {
				chatIDs = append(chatIDs, user.ChatID)
			}
		}
		return chatIDs, nil

	default:
		return nil, fmt.Errorf("unknown audience %q", n.Audience)
	}
}

func (s *Service) markFailed(ctx context.Context, n *domain.Notification, meta domain.DispatchMeta, cause error) error {
	n.Status = domain.StatusFailed
	n.FailureReason = fmt.Sprintf("retry=%d; queue_message_id=%s; %v", meta.RetryCount, meta.QueueMessageID, cause)
	if meta.QueueMessageID != "" {
		n.QueueMessageID = meta.QueueMessageID
	}
	n.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, n); err != nil {
		return err
	}

	if err := s.auditSvc.Record(ctx, s.db, "system", auditdomain.ActionNotificationFail, "notification", n.ID.String(), map[string]any{
		"message_key": n.MessageKey,
		"reason":      n.FailureReason,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	s.log.Warn("notification failed",
		zap.String("id", n.ID.String()),
		zap.String("message_key", n.MessageKey),
		zap.String("reason", n.FailureReason))
	return nil
}

func idString(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
