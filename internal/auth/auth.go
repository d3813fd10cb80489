// Package auth guards the HTTP transport with static API keys.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the API key a request authenticated with.
type Identity struct {
	KeyName string
}

// Subject names the caller in logs and spans.
func (id *Identity) Subject() string { return "apikey:" + id.KeyName }

type identityKey struct{}

// WithIdentity adds an Identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// GetIdentity retrieves the Identity from context, or nil.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Authenticator resolves request credentials. It returns nil when the
// request carries none it accepts.
type Authenticator interface {
	Authenticate(r *http.Request) *Identity
}

const unauthorizedBody = `{"status":"error","message":"valid API key required"}`

// Middleware rejects requests that no authenticator accepts. Paths listed in
// publicPaths pass through; an entry ending in "/*" covers the whole subtree.
func Middleware(authenticators []Authenticator, publicPaths []string) func(http.Handler) http.Handler {
	public := newPathSet(publicPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.contains(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			for _, a := range authenticators {
				if id := a.Authenticate(r); id != nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `ApiKey realm="kvcache"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(unauthorizedBody))
		})
	}
}

type pathSet struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPathSet(paths []string) pathSet {
	s := pathSet{exact: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasSuffix(prefix, "/") {
			s.prefixes = append(s.prefixes, prefix)
			continue
		}
		s.exact[p] = struct{}{}
	}
	return s
}

func (s pathSet) contains(path string) bool {
	if _, ok := s.exact[path]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
