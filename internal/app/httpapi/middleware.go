package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// openPaths bypass bearer auth: health and metrics for probes, the webhook
// because the processor authenticates with its own signature.
func openPath(path string) bool {
	switch path {
	case "/healthz", "/metrics", "/webhooks/payment":
		return true
	}
	return false
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || openPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, errors.New("invalid or missing bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(next http.Handler, origin string) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Webhook-Signature")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitWebhook throttles webhook deliveries so a retry storm from the
// payment processor cannot starve the rest of the API.
func rateLimitWebhook(next http.Handler, perSecond float64, burst int) http.Handler {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/webhooks/payment" && !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, errors.New("webhook rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
