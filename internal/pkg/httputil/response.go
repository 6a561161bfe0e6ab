// Package httputil holds the shared response helpers for HTTP
// handlers, so every endpoint writes the same envelope the same way.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

// JSON writes body as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("httputil: response encode failed", "error", err)
	}
}

// HTML writes a rendered page with the given status.
func HTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(page)); err != nil {
		logger.Warn("httputil: response write failed", "error", err)
	}
}
