package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

// NewIdempotencyMiddleware returns a factory producing per-scope middleware
// that replays the stored response when a client retries with the same
// Idempotency-Key, and rejects key reuse across different payloads.
func NewIdempotencyMiddleware(store service.IdempotencyStore, ttl time.Duration) func(scope string) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(scope string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				key := r.Header.Get(idempotencyHeader)
				if key == "" || store == nil {
					next.ServeHTTP(w, r)
					return
				}

				body, err := io.ReadAll(r.Body)
				if err != nil {
					response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable request body", nil)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				fingerprint := requestFingerprint(r.Method, r.URL.Path, body)

				begin, err := store.Begin(r.Context(), scope, key, fingerprint, ttl)
				if err != nil {
					// The guard is best effort; a broken store must not block
					// the request itself.
					next.ServeHTTP(w, r)
					return
				}
				switch begin.State {
				case service.IdempotencyStateReplay:
					w.Header().Set("Content-Type", begin.Cached.ContentType)
					w.Header().Set("X-Idempotent-Replay", "true")
					w.WriteHeader(begin.Cached.StatusCode)
					_, _ = w.Write(begin.Cached.Body)
					return
				case service.IdempotencyStateInProgress:
					response.Error(w, r, http.StatusConflict, "REQUEST_IN_FLIGHT", "an identical request is still being processed", nil)
					return
				case service.IdempotencyStateConflict:
					response.Error(w, r, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used with a different request", nil)
					return
				}

				var buf bytes.Buffer
				ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
				ww.Tee(&buf)
				next.ServeHTTP(ww, r)

				_ = store.Complete(r.Context(), scope, key, fingerprint, service.CachedHTTPResponse{
					StatusCode:  ww.Status(),
					ContentType: ww.Header().Get("Content-Type"),
					Body:        buf.Bytes(),
				}, ttl)
			})
		}
	}
}

func requestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
