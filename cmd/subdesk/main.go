package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/subdesklabs/subdesk/internal/audit"
	"github.com/subdesklabs/subdesk/internal/catalog"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/credit"
	"github.com/subdesklabs/subdesk/internal/db"
	"github.com/subdesklabs/subdesk/internal/discount"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	"github.com/subdesklabs/subdesk/internal/notification"
	"github.com/subdesklabs/subdesk/internal/observability"
	"github.com/subdesklabs/subdesk/internal/order"
	"github.com/subdesklabs/subdesk/internal/redis"
	"github.com/subdesklabs/subdesk/internal/referral"
	"github.com/subdesklabs/subdesk/internal/scheduler"
	"github.com/subdesklabs/subdesk/internal/server"
	"github.com/subdesklabs/subdesk/internal/subscription"
	"github.com/subdesklabs/subdesk/internal/user"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "subdesk",
		Short:   "Subdesk order and subscription backend",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newServeCmd(), newSchedulerCmd(), newAllCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(append(baseModules(),
				server.Module,
				fx.Invoke(server.RunHTTP),
			)...)
			app.Run()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the background reconcile scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(append(baseModules(),
				scheduler.Module,
				fx.Invoke(scheduler.Start),
			)...)
			app.Run()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run the HTTP API server and the scheduler in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(append(baseModules(),
				server.Module,
				scheduler.Module,
				fx.Invoke(server.RunHTTP),
				fx.Invoke(scheduler.Start),
			)...)
			app.Run()
			return nil
		},
	}
}

func baseModules() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		idempotency.Module,
		user.Module,
		audit.Module,
		catalog.Module,
		discount.Module,
		credit.Module,
		referral.Module,
		subscription.Module,
		order.Module,
		notification.Module,
	}
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
