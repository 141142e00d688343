package ledger

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"glowmesh/core/chain"
	"glowmesh/glow"
	"glowmesh/observability"
)

// AuthConfig configures the bearer-token check gating the read-model API,
// narrowed from the teacher's gateway/middleware.AuthConfig to a single
// HMAC-signed bearer check since the dApp SSO protocol itself is out of
// scope (spec §1's Non-goals).
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
}

// RateLimit bounds requests per caller identity (the raw Authorization
// header value, or the remote address when that header is empty).
type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

type visitorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    RateLimit
}

func newVisitorLimiter(limit RateLimit) *visitorLimiter {
	return &visitorLimiter{limiters: make(map[string]*rate.Limiter), limit: limit}
}

func (v *visitorLimiter) allow(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(v.limit.RatePerSecond), v.limit.Burst)
		v.limiters[id] = l
	}
	return l.Allow()
}

func authMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.HMACSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" {
				observability.ModuleMetrics().RecordThrottle("ledger", "auth_rejected")
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := jwt.MapClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(cfg.Issuer))
			if err != nil || !parsed.Valid {
				observability.ModuleMetrics().RecordThrottle("ledger", "auth_rejected")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func rateLimitMiddleware(limiter *visitorLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("Authorization")
			if id == "" {
				id = r.RemoteAddr
			}
			if !limiter.allow(id) {
				observability.ModuleMetrics().RecordThrottle("ledger", "rate_limit")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Router builds the read-model query API: node map snapshot, per-node
// score, and a long-poll-free subscribe endpoint returning the latest
// sync progress snapshot (true push delivery is left to the caller's own
// transport, e.g. a websocket wrapping this adapter).
func Router(a *Adapter, auth AuthConfig, limit RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "ledger")
	})
	r.Use(metricsMiddleware("ledger"))
	r.Use(rateLimitMiddleware(newVisitorLimiter(limit)))
	r.Use(authMiddleware(auth))

	r.Get("/nodemap", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, a.NodeMap())
	})

	r.Get("/nodes/{id}/score", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		var score int64
		a.Chain().WithState(func(state *chain.DerivedState) {
			score = glow.Score(state, id)
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"nodeId": id,
			"score":  score,
		})
	})

	var latestMu sync.Mutex
	latest := SyncProgress{Status: SyncIdle}
	a.OnSyncProgress(func(p SyncProgress) {
		latestMu.Lock()
		latest = p
		latestMu.Unlock()
	})
	r.Get("/sync", func(w http.ResponseWriter, req *http.Request) {
		latestMu.Lock()
		p := latest
		latestMu.Unlock()
		writeJSON(w, http.StatusOK, p)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// metricsMiddleware records per-route request counts, status-coded errors,
// and latency against observability.ModuleMetrics for module.
func metricsMiddleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			observability.ModuleMetrics().Observe(module, r.URL.Path, sw.status, time.Since(start))
		})
	}
}

// statusWriter captures the status code a handler wrote so metrics
// middleware can observe it after ServeHTTP returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
