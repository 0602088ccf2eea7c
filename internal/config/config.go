package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseDSN string `mapstructure:"DATABASE_DSN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// QueueDispatchURL is the push queue's enqueue endpoint; QueueToken
	// authenticates both the enqueue calls and the callbacks the queue makes
	// to this process.
	QueueDispatchURL string `mapstructure:"QUEUE_DISPATCH_URL"`
	QueueToken       string `mapstructure:"QUEUE_TOKEN"`

	// MessengerURL is the outbound delivery endpoint for rendered messages.
	MessengerURL string `mapstructure:"MESSENGER_URL"`

	PriceDecimals   int     `mapstructure:"PRICE_DECIMALS"`
	ReferralPercent float64 `mapstructure:"REFERRAL_PERCENT"`

	ReminderDaysBeforeExpiry int `mapstructure:"REMINDER_DAYS_BEFORE_EXPIRY"`

	MaxProofSizeMB int `mapstructure:"MAX_PROOF_SIZE_MB"`

	AdminIDs []string `mapstructure:"ADMIN_IDS"`

	ReconcileCronSpec string `mapstructure:"RECONCILE_CRON_SPEC"`
}

func Load() (Config, error) {
	// Local development reads a .env; missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PRICE_DECIMALS", 2)
	v.SetDefault("REFERRAL_PERCENT", 0)
	v.SetDefault("REMINDER_DAYS_BEFORE_EXPIRY", 3)
	v.SetDefault("MAX_PROOF_SIZE_MB", 5)
	v.SetDefault("RECONCILE_CRON_SPEC", "*/10 * * * *")

	// AutomaticEnv does not enumerate keys, so bind the ones we unmarshal.
	for _, key := range []string{
		"DATABASE_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"HTTP_ADDR", "QUEUE_DISPATCH_URL", "QUEUE_TOKEN", "MESSENGER_URL",
		"PRICE_DECIMALS", "REFERRAL_PERCENT", "REMINDER_DAYS_BEFORE_EXPIRY",
		"MAX_PROOF_SIZE_MB", "ADMIN_IDS", "RECONCILE_CRON_SPEC",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if raw := v.GetString("ADMIN_IDS"); raw != "" {
		cfg.AdminIDs = nil
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.AdminIDs = append(cfg.AdminIDs, id)
			}
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: DATABASE_DSN is required")
	}
	if c.PriceDecimals < 0 || c.PriceDecimals > 6 {
		return fmt.Errorf("config: PRICE_DECIMALS must be between 0 and 6")
	}
	if c.ReferralPercent < 0 || c.ReferralPercent > 100 {
		return fmt.Errorf("config: REFERRAL_PERCENT must be between 0 and 100")
	}
	return nil
}

func (c Config) IsAdmin(actorID string) bool {
	for _, id := range c.AdminIDs {
		if id == actorID {
			return true
		}
	}
	return false
}
