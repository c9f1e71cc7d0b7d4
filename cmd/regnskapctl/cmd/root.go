// Package cmd holds the regnskapctl maintenance commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/logger"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "regnskapctl",
	Short: "Maintenance commands for the regnskap engine",
	Long: `regnskapctl runs schema migrations, seeds chart templates and bank
providers, and triggers a one-off auto-sync pass outside the scheduler.

Example:
  regnskapctl migrate up
  regnskapctl migrate down --steps 1
  regnskapctl seed
  regnskapctl sync-due`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(syncDueCmd)
}

func newLogger() (*zap.Logger, error) {
	level := "info"
	if debug {
		level = "debug"
	}
	return logger.New(level, "console")
}

// runApp starts a headless fx app with the database and the given modules,
// fills targets and hands control to fn. The app is stopped afterwards.
func runApp(ctx context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	base := []fx.Option{
		fx.NopLogger,
		fx.Supply(log),
		config.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		clock.Module,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
