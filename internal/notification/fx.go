package notification

import (
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	"github.com/subdesklabs/subdesk/internal/notification/messenger"
	"github.com/subdesklabs/subdesk/internal/notification/queue"
	"github.com/subdesklabs/subdesk/internal/notification/repository"
	"github.com/subdesklabs/subdesk/internal/notification/service"
	subscriptionservice "github.com/subdesklabs/subdesk/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(queue.NewHTTPQueue),
	fx.Provide(messenger.NewHTTPMessenger),
	fx.Provide(func(s *subscriptionservice.Service) notificationdomain.SubscriberResolver { return s }),
	fx.Provide(service.NewService),
)
