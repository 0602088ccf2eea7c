package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/referral/domain"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenPrefix = "ref_"

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	UserRepo userdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	userRepo userdomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("referral.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
	}
}

// ParseToken extracts the referral token from a start payload like
// "ref_abc123"; empty result means no referral attribution.
func ParseToken(startPayload string) string {
	if !strings.HasPrefix(startPayload, tokenPrefix) {
		return ""
	}
	return strings.TrimSpace(startPayload[len(tokenPrefix):])
}

// LinkIfEligible attributes invitee to the owner of token. Self-referral and
// unknown tokens are refused; an invitee already attributed stays attributed
// to their original inviter.
func (s *Service) LinkIfEligible(ctx context.Context, inviteeUserID snowflake.ID, token string) (bool, error) {
	inviter, err := s.userRepo.FindByReferralToken(ctx, s.db, token)
	if err != nil {
		return false, err
	}
	if inviter == nil || inviter.ID == inviteeUserID {
		return false, nil
	}

	existing, err := s.repo.FindByInvitee(ctx, s.db, inviteeUserID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	err = s.repo.Insert(ctx, s.db, &domain.Referral{
		ID:            s.genID.Generate(),
		InviterUserID: inviter.ID,
		InviteeUserID: inviteeUserID,
		CreatedAt:     s.clock.Now(ctx),
	})
	if err != nil {
		return false, err
	}

	s.log.Info("referral linked",
		zap.String("inviter_id", inviter.ID.String()),
		zap.String("invitee_id", inviteeUserID.String()))
	return true, nil
}

// InviterOf reports who referred the user, if the referral is attributable.
func (s *Service) InviterOf(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Referral, error) {
	return s.repo.FindByInvitee(ctx, db, userID)
}
