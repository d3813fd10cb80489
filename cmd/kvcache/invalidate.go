package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/kvcache/internal/cache"
)

func invalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <key|pattern>...",
		Short: "Publish invalidation signals to running kvcache instances",
		Long:  "Publish each argument on the Redis invalidation channel. Arguments containing * or ? purge every matching key.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Invalidation.RedisAddr == "" {
				return fmt.Errorf("--redis-addr or invalidation.redis_addr is required")
			}

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Invalidation.RedisAddr,
				Password: cfg.Invalidation.RedisPassword,
				DB:       cfg.Invalidation.RedisDB,
			})
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			// Publishing never touches an engine.
			iv := cache.NewInvalidator(nil, client, cfg.Invalidation.Channel)
			for _, target := range args {
				if _, err := cache.CompilePattern(target); err != nil {
					return err
				}
				if err := iv.Publish(ctx, target); err != nil {
					return fmt.Errorf("publish %q: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().String("redis-addr", "", "Redis address")
	cmd.Flags().String("channel", cache.DefaultInvalidationChannel, "Redis Pub/Sub channel")

	return cmd
}
