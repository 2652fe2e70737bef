// Package httpapi is the portal's controller boundary. Every response,
// success or failure, uses the same JSON envelope.
package httpapi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"aiportal.dev/internal/auth"
	"aiportal.dev/internal/obs"
)

// ServiceName identifies the portal in health checks and auth challenges.
const ServiceName = "aiportal"

// Options configures the HTTP layer.
type Options struct {
	Version string
	// Verifier authenticates portal bearer tokens. Nil disables authentication.
	Verifier *auth.Verifier
	Ready    ReadyProbe

	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	CORSOrigins    []string
	// TrustedProxies may set X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	svc      Services
	ready    ReadyProbe
	verifier *auth.Verifier
	version  string

	ratePerSec  float64
	rateBurst   int
	maxBody     int64
	corsOrigins []string
	proxies     []netip.Prefix
}

func New(svc Services, opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		svc:         svc,
		ready:       opts.Ready,
		verifier:    opts.Verifier,
		version:     opts.Version,
		ratePerSec:  opts.RateLimitRPS,
		rateBurst:   opts.RateLimitBurst,
		maxBody:     opts.MaxBodyBytes,
		corsOrigins: opts.CORSOrigins,
		proxies:     opts.TrustedProxies,
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/evaluations/tasks", a.guard(auth.PermEvaluationsRead, a.handleTasks))
	a.mux.HandleFunc("/v1/evaluations/tasks/", a.guard(auth.PermEvaluationsRead, a.handleTask))

	a.mux.HandleFunc("/v1/models", a.guard(auth.PermModelsRead, a.handleModels))
	a.mux.HandleFunc("/v1/models/import", a.guard(auth.PermModelsImport, a.handleModelImport))
	a.mux.HandleFunc("/v1/models/import/", a.guard(auth.PermModelsRead, a.handleImportJob))

	a.mux.HandleFunc("/v1/approvals", a.handleApprovals)
	a.mux.HandleFunc("/v1/approvals/", a.guard(auth.PermApprovalsRead, a.handleApproval))

	a.mux.HandleFunc("/v1/monitoring/query", a.guard(auth.PermMonitoringRead, a.handleQuery))
	a.mux.HandleFunc("/v1/monitoring/query_range", a.guard(auth.PermMonitoringRead, a.handleQueryRange))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "client-error", "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler for the HTTP server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(h, a.proxies)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, "ok", map[string]any{
		"status":  "ok",
		"service": ServiceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	results := a.ready.CheckEach(ctx)
	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	obs.SetReady(ready)
	if !ready {
		writeProblemData(w, http.StatusServiceUnavailable, "upstream-unavailable", "not ready", map[string]any{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}
	writeEnvelope(w, http.StatusOK, "ready", map[string]any{
		"status": "ready",
		"checks": checks,
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, "ok", map[string]any{
		"name":    ServiceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
