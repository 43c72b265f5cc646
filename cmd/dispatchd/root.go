package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"civic-dispatch/config"
	"civic-dispatch/core/appbootstrap"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "dispatchd",
	Short:         "Civic issue dispatch service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ledger auditor",
	RunE:  serve,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  migrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (env only when empty)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (*config.AppConfig, *utils.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, utils.NewLoggerWithOptions(os.Stdout, cfg.AppEnv, cfg.LogLevel), nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := appbootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Errorf("close: %v", err)
		}
	}()
	return app.Run(ctx)
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(cmd.Context(), db, logger); err != nil {
		return err
	}
	logger.Printf("migrations applied (%s)", cfg.DBDriver)
	return nil
}
