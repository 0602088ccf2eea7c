package catalog

import (
	"github.com/subdesklabs/subdesk/internal/catalog/repository"
	"github.com/subdesklabs/subdesk/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
