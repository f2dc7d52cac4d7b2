package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/constants"
	fxmodules "github.com/videre-project/MTGOBot/internal/fx"
	"github.com/videre-project/MTGOBot/internal/middleware"
	"github.com/videre-project/MTGOBot/internal/server"
	"github.com/videre-project/MTGOBot/internal/service"
)

// The supervising process restarts the worker on this exit code; any
// other code is treated as a terminal stop.
const restartExitCode = 64

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runStatusServer),
		fx.Invoke(runWorker),
	).Run()
}

func runWorker(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	worker *service.Worker,
	db *sql.DB,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				reason, err := worker.Run(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("worker stopped with error")
				}
				logger.Info().Stringer("reason", reason).Msg("worker exited")

				code := 0
				if reason == service.RestartRequested {
					code = restartExitCode
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error().Err(err).Msg("shutdown failed")
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
}

func runStatusServer(
	lc fx.Lifecycle,
	statusServer *server.StatusServer,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", statusServer.Healthz)
	mux.HandleFunc("/status", statusServer.Status)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.StatusPort),
		Handler: middleware.RequestID(logger)(c.Handler(mux)),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("status server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("status server failed")
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
