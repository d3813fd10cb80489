package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/oriys/kvcache/internal/cache"
	"github.com/oriys/kvcache/internal/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// timestampLayout renders times as ISO-8601 UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}

// writeNotFound renders the not-found shape used by key operations.
func writeNotFound(w http.ResponseWriter, key string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status":  "not_found",
		"message": "Key not found in cache",
		"key":     key,
	})
}

// writeEngineError maps an engine error onto a response. failure is the
// message used for internal faults.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, key, failure string) {
	switch cache.KindOf(err) {
	case cache.KindInvalidInput:
		writeMessage(w, http.StatusBadRequest, err.Error())
	case cache.KindNotFound:
		writeNotFound(w, key)
	case cache.KindPreconditionFailed:
		writeMessage(w, http.StatusBadRequest, "Confirmation required. Add ?confirm=true to clear all cache")
	default:
		logging.FromContext(r.Context()).Error(failure, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": failure,
			"error":   err.Error(),
		})
	}
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
