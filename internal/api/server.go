// Package api exposes the cache engine over HTTP.
package api

import (
	"net/http"

	"github.com/oriys/kvcache/internal/auth"
	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/config"
	"github.com/oriys/kvcache/internal/logging"
	"github.com/oriys/kvcache/internal/observability"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Engine  *cache.Engine
	Metrics http.Handler // served on GET /metrics when non-nil
	AuthCfg *config.AuthConfig
}

// NewHandler builds the routed handler with its middleware chain. From the
// outside in: request id, authentication, panic recovery, tracing, mux.
func NewHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	h := &Handler{Engine: cfg.Engine, Metrics: cfg.Metrics}
	h.RegisterRoutes(mux)

	// Tracing wraps the mux directly so spans are named after the route.
	var handler http.Handler = tagSpan(mux)
	handler = observability.HTTPMiddleware(handler)
	handler = recoverMiddleware(handler)

	if cfg.AuthCfg != nil && cfg.AuthCfg.Enabled {
		authenticators := buildAuthenticators(cfg.AuthCfg)
		if len(authenticators) > 0 {
			handler = auth.Middleware(authenticators, cfg.AuthCfg.PublicPaths)(handler)
			logging.Op().Info("authentication enabled", "public_paths", cfg.AuthCfg.PublicPaths)
		}
	}

	return requestIDMiddleware(handler)
}

// NewServer creates the HTTP server. The caller owns ListenAndServe and
// Shutdown.
func NewServer(addr string, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewHandler(cfg),
	}
}

// buildAuthenticators creates authenticators based on config.
func buildAuthenticators(cfg *config.AuthConfig) []auth.Authenticator {
	if len(cfg.APIKeys) == 0 {
		return nil
	}
	staticKeys := make([]auth.StaticKeyConfig, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		staticKeys = append(staticKeys, auth.StaticKeyConfig{Name: k.Name, Key: k.Key})
	}
	return []auth.Authenticator{auth.NewAPIKeyAuthenticator(staticKeys)}
}
