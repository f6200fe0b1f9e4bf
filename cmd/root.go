// Package cmd defines and implements the CLI commands for the kapwatch
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/app"
	"github.com/JakeFAU/kapwatch/internal/config"
	"github.com/JakeFAU/kapwatch/internal/logging"
	"github.com/JakeFAU/kapwatch/internal/scan"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) (scan.Result, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned release
// func closes the app when a failing subcommand skipped PersistentPostRun.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		built   App
	)
	release := func() {
		if built != nil {
			built.Close()
			built = nil
		}
	}

	cmd := &cobra.Command{
		Use:   "kapwatch",
		Short: "Watches the KAP disclosure feed and forwards new matches.",
		Long: `kapwatch polls the Public Disclosure Platform (KAP) on a fixed interval,
keeps the disclosures whose title contains the configured keyword, and sends
each one exactly once to Telegram, Pub/Sub, NATS or the log.`,
		SilenceUsage: true,

		// Build and inject the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shut services down once the subcommand returns.
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			release()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newOnceCmd())

	return cmd, release
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the root context.
func Execute() {
	logger, err := logging.New(logging.Options{})
	if err != nil {
		logger = zap.NewNop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, release := newRootCmd()
	err = root.ExecuteContext(ctx)
	release()
	stop()
	if err != nil {
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
