package subscription

import (
	"github.com/subdesklabs/subdesk/internal/subscription/repository"
	"github.com/subdesklabs/subdesk/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
