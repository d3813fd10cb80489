package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/logging"
)

// Handler serves the cache HTTP API.
type Handler struct {
	Engine  *cache.Engine
	Metrics http.Handler
}

var availableEndpoints = []string{
	"GET /health",
	"GET /stats",
	"GET /metrics",
	"GET /:key",
	"POST /:key",
	"PUT /:key/ttl",
	"DELETE /:key",
	"DELETE /?confirm=true",
	"POST /mget",
	"POST /mset",
	"GET /search/:pattern",
}

// RegisterRoutes registers all cache routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /stats", h.Stats)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// Batch and search
	mux.HandleFunc("POST /mget", h.MultiGet)
	mux.HandleFunc("POST /mset", h.MultiSet)
	mux.HandleFunc("GET /search/{pattern}", h.Search)

	// Single key
	mux.HandleFunc("GET /{key}", h.Get)
	mux.HandleFunc("POST /{key}", h.Set)
	mux.HandleFunc("PUT /{key}/ttl", h.UpdateTTL)
	mux.HandleFunc("DELETE /{key}", h.Delete)
	mux.HandleFunc("DELETE /{$}", h.Clear)

	mux.HandleFunc("/", h.NotFound)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"message": "Cache service is running",
		"engine":  "ok",
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.Engine.Stats(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"statistics": map[string]any{
			"keyspace_hits":            s.Hits,
			"keyspace_misses":          s.Misses,
			"total_commands_processed": s.CommandsProcessed,
			"hit_rate":                 s.HitRate,
			"keys":                     s.Keys,
			"expiring_keys":            s.ExpiringKeys,
			"uptime_seconds":           int64(s.Uptime.Seconds()),
		},
	})
}

// Get handles GET /{key}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, found, err := h.Engine.Get(r.Context(), key)
	if err != nil {
		writeEngineError(w, r, err, key, "Failed to retrieve from cache")
		return
	}
	if !found {
		writeNotFound(w, key)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"key":          key,
		"value":        v.Decoded(),
		"retrieved_at": formatTime(time.Now()),
	})
}

type setRequest struct {
	Value json.RawMessage `json:"value"`
	TTL   *int64          `json:"ttl"`
}

// Set handles POST /{key}
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req setRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	value, ok := requestValue(w, req.Value, "Value is required")
	if !ok {
		return
	}

	if req.TTL == nil {
		if err := h.Engine.Set(r.Context(), key, value); err != nil {
			writeEngineError(w, r, err, key, "Failed to set cache")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "Value cached successfully",
			"key":     key,
		})
		return
	}

	expiresAt, err := h.Engine.SetWithTTL(r.Context(), key, value, ttlSeconds(*req.TTL))
	if err != nil {
		writeEngineError(w, r, err, key, "Failed to set cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Value cached successfully with expiration",
		"key":        key,
		"ttl":        *req.TTL,
		"expires_at": formatTime(expiresAt),
	})
}

type ttlRequest struct {
	TTL *int64 `json:"ttl"`
}

// UpdateTTL handles PUT /{key}/ttl
func (h *Handler) UpdateTTL(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req ttlRequest
	if err := decodeBody(r, &req); err != nil || req.TTL == nil || *req.TTL <= 0 {
		writeMessage(w, http.StatusBadRequest, "Valid TTL is required")
		return
	}

	expiresAt, err := h.Engine.UpdateTTL(r.Context(), key, ttlSeconds(*req.TTL))
	if err != nil {
		writeEngineError(w, r, err, key, "Failed to update TTL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "TTL updated successfully",
		"key":        key,
		"ttl":        *req.TTL,
		"expires_at": formatTime(expiresAt),
	})
}

// Delete handles DELETE /{key}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.Engine.Delete(r.Context(), key); err != nil {
		writeEngineError(w, r, err, key, "Failed to delete from cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Key deleted successfully",
		"key":     key,
	})
}

// Clear handles DELETE /?confirm=true
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"
	removed, err := h.Engine.Clear(r.Context(), confirmed)
	if err != nil {
		writeEngineError(w, r, err, "", "Failed to clear cache")
		return
	}
	logging.FromContext(r.Context()).Warn("all cache entries cleared", "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "All cache cleared successfully",
		"removed": removed,
	})
}

type multiGetRequest struct {
	Keys []string `json:"keys"`
}

type keyResult struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Found bool   `json:"found"`
}

// MultiGet handles POST /mget
func (h *Handler) MultiGet(w http.ResponseWriter, r *http.Request) {
	var req multiGetRequest
	if err := decodeBody(r, &req); err != nil || len(req.Keys) == 0 {
		writeMessage(w, http.StatusBadRequest, "Keys array is required")
		return
	}

	results, err := h.Engine.MultiGet(r.Context(), req.Keys)
	if err != nil {
		writeEngineError(w, r, err, "", "Failed to retrieve multiple keys")
		return
	}
	out := make([]keyResult, len(results))
	for i, res := range results {
		out[i] = keyResult{Key: res.Key, Found: res.Found}
		if res.Found {
			out[i].Value = res.Value.Decoded()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"results": out,
	})
}

type multiSetRequest struct {
	Data map[string]json.RawMessage `json:"data"`
	TTL  *int64                     `json:"ttl"`
}

// MultiSet handles POST /mset
func (h *Handler) MultiSet(w http.ResponseWriter, r *http.Request) {
	var req multiSetRequest
	if err := decodeBody(r, &req); err != nil || len(req.Data) == 0 {
		writeMessage(w, http.StatusBadRequest, "Data object is required")
		return
	}

	items := make(map[string]cache.Value, len(req.Data))
	for k, raw := range req.Data {
		v, ok := requestValue(w, raw, fmt.Sprintf("Value for key %q is required", k))
		if !ok {
			return
		}
		items[k] = v
	}

	var (
		n   int
		err error
		ttl any = "no expiration"
	)
	if req.TTL == nil {
		n, err = h.Engine.MultiSet(r.Context(), items)
	} else {
		n, err = h.Engine.MultiSetWithTTL(r.Context(), items, ttlSeconds(*req.TTL))
		ttl = *req.TTL
	}
	if err != nil {
		writeEngineError(w, r, err, "", "Failed to set multiple keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  "Multiple keys set successfully",
		"keys_set": n,
		"ttl":      ttl,
	})
}

// Search handles GET /search/{pattern}
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	pattern := r.PathValue("pattern")
	keys, err := h.Engine.Search(r.Context(), pattern)
	if err != nil {
		writeEngineError(w, r, err, "", "Failed to search keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"pattern": pattern,
		"keys":    keys,
		"count":   len(keys),
	})
}

// NotFound handles every unrouted request.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status":              "error",
		"message":             "Endpoint not found",
		"available_endpoints": availableEndpoints,
	})
}

// requestValue converts a raw JSON body field into a cache value. A missing
// field or an explicit null is rejected with missing.
func requestValue(w http.ResponseWriter, raw json.RawMessage, missing string) (cache.Value, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		writeMessage(w, http.StatusBadRequest, missing)
		return cache.Value{}, false
	}
	v, err := cache.RawJSONValue(raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return cache.Value{}, false
	}
	return v, true
}

// maxTTLSeconds keeps ttl*time.Second inside a time.Duration.
const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

// ttlSeconds converts a ttl in seconds. Non-positive values and values
// that would overflow map to a negative duration so the engine rejects them.
func ttlSeconds(n int64) time.Duration {
	if n <= 0 || n > maxTTLSeconds {
		return -1
	}
	return time.Duration(n) * time.Second
}
