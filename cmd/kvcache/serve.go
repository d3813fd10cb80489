package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/kvcache/internal/api"
	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/logging"
	"github.com/oriys/kvcache/internal/metrics"
	"github.com/oriys/kvcache/internal/observability"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.InitStructured(cfg.Server.LogFormat, cfg.Server.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: "kvcache",
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				observability.Shutdown(shutdownCtx)
			}()

			collector := metrics.NewCollector("kvcache")
			engine := cache.New(engineConfig(cfg, collector))
			defer engine.Close()
			collector.Bind(engine)

			httpServer := api.NewServer(cfg.Server.ListenAddr, api.ServerConfig{
				Engine:  engine,
				Metrics: collector.Handler(),
				AuthCfg: &cfg.Auth,
			})

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logging.Op().Info("kvcache started",
					"addr", cfg.Server.ListenAddr,
					"version", version,
					"sweep_interval", cfg.Cache.SweepInterval.String(),
					"max_keys", cfg.Cache.MaxKeys,
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				logging.Op().Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown http server: %w", err)
				}
				return nil
			})

			if addr := cfg.Invalidation.RedisAddr; addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     addr,
					Password: cfg.Invalidation.RedisPassword,
					DB:       cfg.Invalidation.RedisDB,
				})
				defer client.Close()
				iv := cache.NewInvalidator(engine, client, cfg.Invalidation.Channel)
				defer iv.Close()

				g.Go(func() error {
					// The feed is optional; losing it must not take the service down.
					if err := iv.Run(gctx); err != nil {
						logging.Op().Warn("invalidation feed stopped", "redis", addr, "error", err)
					}
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			logging.Op().Info("kvcache stopped")
			return nil
		},
	}

	cmd.Flags().String("listen", ":3000", "Listen address")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
	cmd.Flags().Duration("sweep-interval", time.Second, "Interval between expired-key sweeps (0 disables)")
	cmd.Flags().Int("max-keys", 0, "Maximum number of stored keys (0 = unbounded)")
	cmd.Flags().String("redis-addr", "", "Redis address for the invalidation feed (empty disables it)")
	cmd.Flags().String("channel", cache.DefaultInvalidationChannel, "Redis Pub/Sub channel for invalidation signals")

	return cmd
}
