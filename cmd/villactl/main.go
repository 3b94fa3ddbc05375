// Command villactl runs operator tasks against a villaops deployment:
// smoke checks, calendar exports, backups, spreadsheet rebuilds and sync
// queue inspection.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// env is what every subcommand works with.
type env struct {
	cfg    *config.Config
	logger *zerolog.Logger
	db     *database.DB
	closer io.Closer
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "villactl",
		Short:         "Operator tools for villaops",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "Config file path (YAML)")

	open := func(cmd *cobra.Command, withDB bool) (*env, error) {
		return openEnv(cmd.Context(), configPath, withDB)
	}

	cmd.AddCommand(
		checkCmd(open),
		exportCmd(open),
		backupCmd(open),
		sheetsCmd(open),
		propertiesCmd(open),
		syncCmd(open),
	)
	return cmd
}

type opener func(cmd *cobra.Command, withDB bool) (*env, error)

func openEnv(ctx context.Context, configPath string, withDB bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg, logger: logging.Component(logger, "villactl"), closer: closer}
	if !withDB {
		return e, nil
	}

	db, err := database.NewDB(cfg.Database.Path, e.logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	e.db = db
	if len(cfg.Properties) > 0 {
		if err := db.SyncProperties(ctx, cfg.Properties); err != nil {
			e.Close()
			return nil, fmt.Errorf("sync properties: %w", err)
		}
	}
	return e, nil
}
