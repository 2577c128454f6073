package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"moscowboard/api/internal/app"
	"moscowboard/api/internal/export"
	"moscowboard/api/internal/feed"
	"moscowboard/api/internal/store"
)

func newServeCmd(load configLoader) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				logger.WithError(err).Error("startup failed")
				return err
			}
			defer rt.Close()

			if !skipMigrations {
				if err := store.ApplyMigrations(ctx, rt.db, cfg.DatabaseDriver); err != nil {
					logger.WithError(err).Error("migrations failed")
					return err
				}
			}
			if rt.archiver != nil {
				if err := rt.archiver.EnsureBucket(ctx); err != nil {
					logger.WithError(err).Warn("archive bucket unavailable")
				}
			}

			svc := rt.service()
			live := feed.NewWSHandler(rt.publisher, svc, cfg.CORSOrigin, logger)
			checks := map[string]app.ReadinessCheck{}
			if rt.redis != nil {
				checks["redis"] = func(ctx context.Context) error { return rt.redis.Ping(ctx).Err() }
			}
			httpServer := app.NewHTTPServer(svc, live, app.HTTPOptions{
				CORSOrigin:     cfg.CORSOrigin,
				RateLimitRPS:   cfg.RateLimitRPS,
				RateLimitBurst: cfg.RateLimitBurst,
				Logger:         logger,
				Checks:         checks,
			})
			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpServer.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.WithField("addr", cfg.Addr).Info("MoSCoW API listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				live.Close()
				return server.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				httpServer.Limiter().RunCleanup(gctx, time.Minute)
				return nil
			})
			if rt.relay != nil {
				g.Go(func() error { return rt.relay.Run(gctx) })
			} else {
				g.Go(func() error {
					purgeSessions(gctx, rt, time.Hour)
					return nil
				})
			}
			if cfg.ArchiveSchedule != "" && rt.archiver != nil {
				scheduler, err := export.NewScheduler(cfg.ArchiveSchedule, rt.archiver, logger)
				if err != nil {
					return err
				}
				g.Go(func() error { return scheduler.Run(gctx) })
			}

			if err := g.Wait(); err != nil {
				logger.WithError(err).Error("server stopped")
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

// purgeSessions deletes expired SQL refresh sessions and revocations.
func purgeSessions(ctx context.Context, rt *runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.store.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				rt.logger.WithError(err).Warn("purge expired sessions")
			}
		}
	}
}
