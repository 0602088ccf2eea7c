package db

import (
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	"github.com/subdesklabs/subdesk/internal/config"
	creditdomain "github.com/subdesklabs/subdesk/internal/credit/domain"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	orderdomain "github.com/subdesklabs/subdesk/internal/order/domain"
	referraldomain "github.com/subdesklabs/subdesk/internal/referral/domain"
	subscriptiondomain "github.com/subdesklabs/subdesk/internal/subscription/domain"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	log.Named("db").Info("database connected")
	return gdb, nil
}

// Migrate keeps the schema in step with the models. It is additive only;
// nothing here drops or rewrites existing columns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&userdomain.User{},
		&userdomain.FieldProfile{},
		&catalogdomain.Service{},
		&discountdomain.DiscountCode{},
		&discountdomain.DiscountCodeService{},
		&discountdomain.DiscountRedemption{},
		&creditdomain.LedgerEntry{},
		&referraldomain.Referral{},
		&subscriptiondomain.Subscription{},
		&orderdomain.Order{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	)
}
