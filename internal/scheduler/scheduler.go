package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	subscriptionservice "github.com/subdesklabs/subdesk/internal/subscription/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Param struct {
	fx.In

	Log             *zap.Logger
	Cfg             config.Config
	Clock           clock.Clock
	SubscriptionSvc *subscriptionservice.Service
}

// Scheduler runs the periodic maintenance jobs. Currently that is one job:
// flipping ended subscriptions to expired so reads and notifications agree
// with the calendar.
type Scheduler struct {
	log   *zap.Logger
	cfg   config.Config
	clock clock.Clock
	cron  *cron.Cron

	subscriptionSvc *subscriptionservice.Service
}

func New(p Param) *Scheduler {
	return &Scheduler{
		log:             p.Log.Named("scheduler"),
		cfg:             p.Cfg,
		clock:           p.Clock,
		cron:            cron.New(),
		subscriptionSvc: p.SubscriptionSvc,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.ReconcileCronSpec, func() {
		s.runReconcile(context.Background())
	})
	if err != nil {
		return err
	}

	// Catch up on anything that expired while the process was down.
	s.runReconcile(ctx)

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.cfg.ReconcileCronSpec))
	return nil
}

func (s *Scheduler) Stop(context.Context) error {
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	count, err := s.subscriptionSvc.ReconcileExpired(ctx, s.clock.Now(ctx))
	if err != nil {
		s.log.Error("subscription reconcile failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.log.Info("subscription reconcile done", zap.Int("expired", count))
	}
}
