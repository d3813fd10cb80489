package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// APIKeyAuthenticator validates static API keys from configuration. Keys
// are held only as SHA-256 hashes.
type APIKeyAuthenticator struct {
	staticKeys map[string]string // hash -> key name
}

// StaticKeyConfig represents a static API key from config
type StaticKeyConfig struct {
	Name string
	Key  string
}

// NewAPIKeyAuthenticator creates a new API key authenticator
func NewAPIKeyAuthenticator(keys []StaticKeyConfig) *APIKeyAuthenticator {
	auth := &APIKeyAuthenticator{staticKeys: make(map[string]string, len(keys))}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		auth.staticKeys[hashAPIKey(k.Key)] = k.Name
	}
	return auth
}

// Authenticate implements Authenticator
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) *Identity {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		// Also accept Authorization: ApiKey xxx
		if rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "ApiKey "); ok {
			key = strings.TrimSpace(rest)
		}
	}
	if key == "" {
		return nil
	}

	keyHash := hashAPIKey(key)
	for hash, name := range a.staticKeys {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(keyHash)) == 1 {
			return &Identity{KeyName: name}
		}
	}
	return nil
}

// hashAPIKey creates a SHA256 hash of the API key
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GenerateAPIKey creates a random API key with the kv_ prefix
func GenerateAPIKey() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 32)
	randomBytes := make([]byte, 32)
	rand.Read(randomBytes)
	for i := range b {
		b[i] = charset[randomBytes[i]%byte(len(charset))]
	}
	return "kv_" + string(b)
}
