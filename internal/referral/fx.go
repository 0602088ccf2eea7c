package referral

import (
	"github.com/subdesklabs/subdesk/internal/referral/repository"
	"github.com/subdesklabs/subdesk/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
