// Package mcptools exposes the cache engine as MCP tools so agents can use
// it over stdio.
package mcptools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oriys/kvcache/internal/cache"
)

// NewServer builds an MCP server with every cache tool registered.
func NewServer(engine *cache.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"kvcache",
		version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	Register(s, engine)
	return s
}

// Register adds the cache tools to s.
func Register(s *server.MCPServer, engine *cache.Engine) {
	t := &Tools{Engine: engine}

	s.AddTool(mcp.NewTool("cache_get",
		mcp.WithDescription("Reads the value stored under a key. Expired keys are reported as not found."),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to read")),
	), t.Get)

	s.AddTool(mcp.NewTool("cache_set",
		mcp.WithDescription(multiline(
			"Stores a value under a key, replacing any previous value and expiration",
			"- Set json to true to store value as a structured JSON document",
			"- Omit ttl for a value that never expires",
		)),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to write")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The value to store")),
		mcp.WithBoolean("json", mcp.Description("Parse value as JSON")),
		mcp.WithNumber("ttl", mcp.Description("Seconds until the key expires, must be positive")),
	), t.Set)

	s.AddTool(mcp.NewTool("cache_delete",
		mcp.WithDescription("Deletes a key. Fails if the key does not exist."),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to delete")),
	), t.Delete)

	s.AddTool(mcp.NewTool("cache_update_ttl",
		mcp.WithDescription("Sets a new expiration on an existing key. Never creates a key."),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to update")),
		mcp.WithNumber("ttl", mcp.Required(), mcp.Description("Seconds until the key expires, must be positive")),
	), t.UpdateTTL)

	s.AddTool(mcp.NewTool("cache_mget",
		mcp.WithDescription("Reads several keys at once. Results follow the order of keys."),
		mcp.WithArray("keys", mcp.Required(),
			mcp.Description("Keys to read"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), t.MultiGet)

	s.AddTool(mcp.NewTool("cache_mset",
		mcp.WithDescription("Writes several keys atomically: either all are stored or none are."),
		mcp.WithObject("data", mcp.Required(), mcp.Description("Key to value mapping")),
		mcp.WithNumber("ttl", mcp.Description("Seconds until every written key expires")),
	), t.MultiSet)

	s.AddTool(mcp.NewTool("cache_search",
		mcp.WithDescription("Lists live keys matching a glob pattern: * matches any run of characters, ? matches one."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("The glob pattern")),
	), t.Search)

	s.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Reports hit/miss counters, hit rate, key counts and uptime."),
	), t.Stats)

	s.AddTool(mcp.NewTool("cache_clear",
		mcp.WithDescription("Removes every key. Requires confirm set to true."),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to clear the cache")),
	), t.Clear)
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
