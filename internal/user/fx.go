package user

import (
	"github.com/subdesklabs/subdesk/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
)
