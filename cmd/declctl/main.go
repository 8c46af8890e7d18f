package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseffiran/SilkRouteHelper-1/internal/adapters/cli"
	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/usecase"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/repository/postgres"
	"github.com/joseffiran/SilkRouteHelper-1/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewCLILogger("declctl", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Runtime{
		Config: cfg,
		OpenCatalog: func(context.Context) (ports.TemplateCatalog, func(), error) {
			db, err := openDB(cfg)
			if err != nil {
				return nil, nil, err
			}
			svc := usecase.NewTemplateService(postgres.NewTemplateRepository(db), 0)
			return svc, func() { _ = db.Close() }, nil
		},
		OpenSweeper: func(context.Context) (ports.StuckRunSweeper, func(), error) {
			db, err := openDB(cfg)
			if err != nil {
				return nil, nil, err
			}
			sweeper := usecase.NewCleanupUseCase(postgres.NewDocumentRepository(db), cfg.ProcessingTimeout)
			return sweeper, func() { _ = db.Close() }, nil
		},
	})
	root.SetOut(os.Stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.MigrateOnBoot {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}
