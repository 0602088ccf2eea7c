package discount

import (
	"github.com/subdesklabs/subdesk/internal/discount/repository"
	"github.com/subdesklabs/subdesk/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
