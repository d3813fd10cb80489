package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oriys/kvcache/internal/cache"
)

// Tools holds the MCP tool handlers.
type Tools struct {
	Engine *cache.Engine
}

// Get handles cache_get.
func (t *Tools) Get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, found, err := t.Engine.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("key %q not found", key)), nil
	}
	return jsonResult(map[string]any{"key": key, "value": v.Decoded()})
}

// Set handles cache_set.
func (t *Tools) Set(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := cache.TextValue(raw)
	if req.GetBool("json", false) {
		if value, err = cache.RawJSONValue([]byte(raw)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	ttl, hasTTL, err := optionalTTL(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !hasTTL {
		if err := t.Engine.Set(ctx, key, value); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("stored %q", key)), nil
	}
	expiresAt, err := t.Engine.SetWithTTL(ctx, key, value, ttl)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored %q until %s", key, expiresAt.UTC().Format(time.RFC3339))), nil
}

// Delete handles cache_delete.
func (t *Tools) Delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.Engine.Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %q", key)), nil
}

// UpdateTTL handles cache_update_ttl.
func (t *Tools) UpdateTTL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ttl, hasTTL, err := optionalTTL(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !hasTTL {
		return mcp.NewToolResultError("ttl is required"), nil
	}
	expiresAt, err := t.Engine.UpdateTTL(ctx, key, ttl)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%q now expires at %s", key, expiresAt.UTC().Format(time.RFC3339))), nil
}

// MultiGet handles cache_mget.
func (t *Tools) MultiGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, ok := req.GetArguments()["keys"].([]any)
	if !ok || len(list) == 0 {
		return mcp.NewToolResultError("keys must be a non-empty array of strings"), nil
	}
	keys := make([]string, len(list))
	for i, k := range list {
		s, ok := k.(string)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("keys[%d] is not a string", i)), nil
		}
		keys[i] = s
	}

	results, err := t.Engine.MultiGet(ctx, keys)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]map[string]any, len(results))
	for i, r := range results {
		var v any
		if r.Found {
			v = r.Value.Decoded()
		}
		out[i] = map[string]any{"key": r.Key, "value": v, "found": r.Found}
	}
	return jsonResult(out)
}

// MultiSet handles cache_mset.
func (t *Tools) MultiSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, ok := req.GetArguments()["data"].(map[string]any)
	if !ok || len(data) == 0 {
		return mcp.NewToolResultError("data must be a non-empty object"), nil
	}
	items := make(map[string]cache.Value, len(data))
	for k, raw := range data {
		v, err := cache.EncodeValue(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("data[%q]: %v", k, err)), nil
		}
		items[k] = v
	}

	ttl, hasTTL, err := optionalTTL(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var n int
	if hasTTL {
		n, err = t.Engine.MultiSetWithTTL(ctx, items, ttl)
	} else {
		n, err = t.Engine.MultiSet(ctx, items)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored %d keys", n)), nil
}

// Search handles cache_search.
func (t *Tools) Search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keys, err := t.Engine.Search(ctx, pattern)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"pattern": pattern, "keys": keys, "count": len(keys)})
}

// Stats handles cache_stats.
func (t *Tools) Stats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s := t.Engine.Stats(ctx)
	return jsonResult(map[string]any{
		"keyspace_hits":            s.Hits,
		"keyspace_misses":          s.Misses,
		"total_commands_processed": s.CommandsProcessed,
		"hit_rate":                 s.HitRate,
		"keys":                     s.Keys,
		"expiring_keys":            s.ExpiringKeys,
		"uptime_seconds":           int64(s.Uptime.Seconds()),
	})
}

// Clear handles cache_clear.
func (t *Tools) Clear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := t.Engine.Clear(ctx, req.GetBool("confirm", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cleared %d keys", n)), nil
}

// optionalTTL reads the ttl argument in whole seconds. hasTTL is false when
// the argument is absent.
func optionalTTL(req mcp.CallToolRequest) (ttl time.Duration, hasTTL bool, err error) {
	raw, ok := req.GetArguments()["ttl"]
	if !ok || raw == nil {
		return 0, false, nil
	}
	secs, ok := raw.(float64)
	if !ok || secs != math.Trunc(secs) {
		return 0, false, fmt.Errorf("ttl must be a whole number of seconds")
	}
	if secs <= 0 || secs > float64(math.MaxInt64/int64(time.Second)) {
		return 0, false, fmt.Errorf("ttl must be a positive number of seconds")
	}
	return time.Duration(secs) * time.Second, true, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
