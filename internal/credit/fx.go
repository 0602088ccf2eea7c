package credit

import (
	"github.com/subdesklabs/subdesk/internal/credit/repository"
	"github.com/subdesklabs/subdesk/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
