package main

import (
	"github.com/spf13/cobra"

	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/config"
)

// loadConfig resolves defaults, the --config file and KVCACHE_* variables.
// Flags that were set explicitly override all of them.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("log-level") {
		cfg.Server.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Server.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("sweep-interval") {
		cfg.Cache.SweepInterval, _ = flags.GetDuration("sweep-interval")
	}
	if flags.Changed("max-keys") {
		cfg.Cache.MaxKeys, _ = flags.GetInt("max-keys")
	}
	if flags.Changed("redis-addr") {
		cfg.Invalidation.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("channel") {
		cfg.Invalidation.Channel, _ = flags.GetString("channel")
	}
	return cfg, cfg.Validate()
}

func engineConfig(cfg *config.Config, observer cache.Observer) cache.Config {
	return cache.Config{
		SweepInterval:  cfg.Cache.SweepInterval,
		SweepBatchSize: cfg.Cache.SweepBatchSize,
		MaxKeys:        cfg.Cache.MaxKeys,
		Observer:       observer,
	}
}
