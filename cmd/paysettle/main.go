package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/migration"
	"github.com/smallbiznis/paysettle/internal/observability"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	"github.com/smallbiznis/paysettle/internal/scheduler"
	"github.com/smallbiznis/paysettle/internal/seed"
	"github.com/smallbiznis/paysettle/internal/server"
	"github.com/smallbiznis/paysettle/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "paysettle",
		Short:   "Order payment and settlement service",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(resyncCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// core is the infrastructure every subcommand runs on.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the reconciliation sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				core(),
				migration.Module,
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(commandContext(cmd), fx.Options(core(), migration.Module))
		},
	}
}

func resyncCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "resync [orderCode]",
		Short: "Reconcile one payment with the status the gateway reports",
		Long: `Polls the payment gateway for the given order code and applies the
reported status. A payment that is already paid re-propagates its paid state
to the purchased items.

Examples:
  paysettle resync 100001
  paysettle resync 100001 --timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderCode, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || orderCode <= 0 {
				return fmt.Errorf("invalid order code %q", args[0])
			}

			var svc paymentdomain.Service
			ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
			defer cancel()

			app := fx.New(
				core(),
				server.Services,
				fx.Populate(&svc),
				fx.NopLogger,
			)
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			result, err := svc.Resync(ctx, orderCode)
			if err != nil {
				return fmt.Errorf("resync %d: %w", orderCode, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the reconciliation")

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Migrate and insert a demo buyer and competition for local checkouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				node *snowflake.Node
			)
			ctx := commandContext(cmd)
			app := fx.New(
				core(),
				migration.Module,
				fx.Populate(&conn, &node),
				fx.NopLogger,
			)
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			data, err := seed.EnsureDemoData(ctx, conn, node)
			if err != nil {
				return fmt.Errorf("seed demo data: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
}

func runOnce(ctx context.Context, opts fx.Option) error {
	app := fx.New(opts, fx.NopLogger)
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(context.Background())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
