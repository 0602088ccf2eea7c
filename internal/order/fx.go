package order

import (
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	"github.com/subdesklabs/subdesk/internal/order/domain"
	"github.com/subdesklabs/subdesk/internal/order/repository"
	"github.com/subdesklabs/subdesk/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	// The order repository answers the discount engine's first-purchase check.
	fx.Provide(func(r domain.Repository) discountdomain.ApprovedOrderChecker { return r }),
	fx.Provide(service.NewService),
)
