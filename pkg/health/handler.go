package health

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Probe paths served by Router.
const (
	LivePath  = "/health/live"
	ReadyPath = "/health/ready"
)

// LivenessHandler always responds OK while the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		write(w, r, http.StatusOK, &Report{Status: StatusHealthy})
	}
}

// ReadinessHandler runs the prober's checks on every request and responds
// 503 when any of them fails.
func (p *Prober) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := p.Run(r.Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		write(w, r, status, report)
	}
}

// Router returns a chi router serving the liveness and readiness probes.
//
// Example:
//
//	p := health.NewProber(health.Checks{
//	    "postgres": db.Healthcheck(pool),
//	    "worker":   job.Healthcheck(worker),
//	})
//	srv := &http.Server{Addr: ":8081", Handler: health.Router(p)}
func Router(p *Prober) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.NoCache)
	r.Get(LivePath, LivenessHandler())
	r.Get(ReadyPath, p.ReadinessHandler())
	return r
}

// write responds with JSON when asked through ?format=json or the Accept
// header, and with a plain text status line otherwise.
func write(w http.ResponseWriter, r *http.Request, status int, report *Report) {
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(http.StatusText(status)))
}
