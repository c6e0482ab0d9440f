package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ResponseHeaders normalizes request content negotiation and stamps
// every response with a consistent, provider-agnostic header set —
// the semantic cache's equivalent of the gateway's per-upstream
// header scrubbing, minus the multi-provider stripping list since
// this API has exactly one backend talking to itself.
type ResponseHeaders struct {
	logger    zerolog.Logger
	cacheName string
	cacheVer  string
}

// NewResponseHeaders creates the header-normalization middleware.
func NewResponseHeaders(logger zerolog.Logger, cacheName, cacheVersion string) *ResponseHeaders {
	return &ResponseHeaders{logger: logger, cacheName: cacheName, cacheVer: cacheVersion}
}

// Handler returns the HTTP middleware handler.
func (h *ResponseHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct != "" && strings.Contains(ct, "json") && ct != "application/json" {
			r.Header.Set("Content-Type", "application/json")
		}
		if r.Header.Get("Accept") == "" {
			r.Header.Set("Accept", "application/json")
		}

		wrapped := &headerNormWriter{ResponseWriter: w, cacheName: h.cacheName, cacheVer: h.cacheVer}
		next.ServeHTTP(wrapped, r)
	})
}

// headerNormWriter stamps identifying headers on the first write and
// suppresses duplicate WriteHeader calls, the way the teacher's
// equivalent wrapper behaves.
type headerNormWriter struct {
	http.ResponseWriter
	cacheName   string
	cacheVer    string
	wroteHeader bool
}

func (hw *headerNormWriter) WriteHeader(code int) {
	if hw.wroteHeader {
		return
	}
	hw.wroteHeader = true
	hw.ResponseWriter.Header().Set("X-Semantic-Cache", hw.cacheName)
	hw.ResponseWriter.Header().Set("X-Cache-Version", hw.cacheVer)
	hw.ResponseWriter.WriteHeader(code)
}

func (hw *headerNormWriter) Write(b []byte) (int, error) {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	return hw.ResponseWriter.Write(b)
}

func (hw *headerNormWriter) Flush() {
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
