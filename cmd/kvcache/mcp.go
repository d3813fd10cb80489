package main

import (
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/logging"
	"github.com/oriys/kvcache/internal/mcptools"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cache as MCP tools over stdio",
		Long:  "Run an in-process cache engine and expose it to MCP clients on stdin/stdout. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			logging.Init(os.Stderr, cfg.Server.LogFormat, cfg.Server.LogLevel)

			engine := cache.New(engineConfig(cfg, nil))
			defer engine.Close()

			s := mcptools.NewServer(engine, version)
			logging.Op().Info("starting MCP server on stdio")
			return server.ServeStdio(s)
		},
	}

	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
	cmd.Flags().Duration("sweep-interval", time.Second, "Interval between expired-key sweeps (0 disables)")
	cmd.Flags().Int("max-keys", 0, "Maximum number of stored keys (0 = unbounded)")

	return cmd
}
