package lightclient

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"glowmesh/core/chain"
	"glowmesh/observability"
)

// Router builds the light-client query API: header lookup and Merkle-proof
// verification, the two operations spec §4.9 names.
func Router(c *Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "lightclient")
	})
	r.Use(metricsMiddleware("lightclient"))

	r.Get("/headers/{index}", func(w http.ResponseWriter, req *http.Request) {
		index, err := strconv.ParseUint(chi.URLParam(req, "index"), 10, 64)
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		header, ok := c.HeaderAt(index)
		if !ok {
			http.Error(w, ErrHeaderNotFound.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, header)
	})

	r.Get("/tip", func(w http.ResponseWriter, req *http.Request) {
		tip, ok := c.Tip()
		if !ok {
			http.Error(w, ErrHeaderNotFound.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, tip)
	})

	r.Post("/verify", func(w http.ResponseWriter, req *http.Request) {
		var proof chain.TransactionProof
		if err := json.NewDecoder(req.Body).Decode(&proof); err != nil {
			http.Error(w, "invalid proof body", http.StatusBadRequest)
			return
		}
		ok, err := c.VerifyTransaction(proof)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
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
