package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/desertthunder/spotrelay/internal/repositories"
	"github.com/desertthunder/spotrelay/internal/server"
	"github.com/desertthunder/spotrelay/internal/shared"
	"github.com/desertthunder/spotrelay/internal/spotify"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Serve runs the relay HTTP service until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	store, refresher, executor := r.credentialStack(config)
	svc := spotify.NewService(executor, "", r.logger)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	history := repositories.NewHistoryRepository(db)

	limit := cmd.Float64("rate-limit")
	if limit <= 0 {
		limit = 20
	}

	router := server.NewBasicRouter()
	router.Use(
		server.RequestLogger(r.logger),
		server.Throttle(rate.NewLimiter(rate.Limit(limit), int(limit))),
	)
	router.Handler(server.NewAuthHandler(store, refresher, r.logger))
	router.Handler(server.NewPlayerHandler(svc, history, r.logger))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, config.Server.Addr(), router, r.logger)
}
