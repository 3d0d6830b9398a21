// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services; the pipeline adapters (access logging, response masking) live
// here too so business code stays transport-free.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/audit"
	"custodia/internal/breach"
	"custodia/internal/compliance"
	"custodia/internal/consent"
	"custodia/internal/dsar"
	"custodia/internal/masking"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
)

// Deps carries every service the router mounts. One instance of each,
// constructed at startup.
type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Masking      *masking.Engine
	MaskingRules masking.RuleStore
	Audit        *audit.Service
	Consent      *consent.Service
	DSAR         *dsar.Service
	Breach       *breach.Service
	Compliance   *compliance.Service
	Validator    middleware.TokenValidator
	Timeout      time.Duration
}

// NewRouter wires the middleware chain, the operational endpoints, and every
// feature handler behind authentication and the access-log interceptor.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.LatencyMiddleware(deps.Metrics))
	r.Use(middleware.Timeout(deps.Timeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	interceptor := NewAccessLogInterceptor(deps.Audit, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		r.Use(interceptor.Middleware)

		NewMaskingHandler(deps.MaskingRules, deps.Masking, deps.Logger).Register(r)
		NewAuditHandler(deps.Audit, deps.Logger).Register(r)
		NewConsentHandler(deps.Consent, deps.Logger).Register(r)
		NewBreachHandler(deps.Breach, deps.Logger).Register(r)
		NewComplianceHandler(deps.Compliance, deps.Logger).Register(r)

		// DSAR payloads carry subject contact details, so their responses run
		// through the masking engine like any other user-facing resource.
		r.Group(func(r chi.Router) {
			r.Use(MaskResponse(deps.Masking, "dsar_request", deps.Logger))
			NewDSARHandler(deps.DSAR, deps.Logger).Register(r)
		})
	})

	return r
}
