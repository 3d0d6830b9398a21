package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccessLogsRecorded  *prometheus.CounterVec
	AccessLogFailures   prometheus.Counter
	FieldsMasked        prometheus.Counter
	ConsentsGranted     prometheus.Counter
	ConsentsWithdrawn   prometheus.Counter
	DSARsCreated        *prometheus.CounterVec
	BreachesReported    prometheus.Counter
	AnomaliesFlagged    prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
	MaskingCacheHits    prometheus.Counter
	MaskingCacheMisses  prometheus.Counter
	PacksAssigned       prometheus.Counter
	ProgressTransitions *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccessLogsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_access_logs_recorded_total",
			Help: "Total sensitive data access log entries recorded, by risk tier",
		}, []string{"risk_tier"}),
		AccessLogFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_access_log_failures_total",
			Help: "Total audit log writes that failed and were dropped off the request path",
		}),
		FieldsMasked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_fields_masked_total",
			Help: "Total fields obscured by the masking engine",
		}),
		ConsentsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consents_granted_total",
			Help: "Total consent records granted",
		}),
		ConsentsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consents_withdrawn_total",
			Help: "Total consent records withdrawn, including supersessions",
		}),
		DSARsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_dsars_created_total",
			Help: "Total data subject requests created, by request type",
		}, []string{"request_type"}),
		BreachesReported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_breaches_reported_total",
			Help: "Total breach reports registered",
		}),
		AnomaliesFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_anomalies_flagged_total",
			Help: "Total anomaly checks that scored as unusual",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		MaskingCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_masking_rule_cache_hits_total",
			Help: "Masking rule cache hits",
		}),
		MaskingCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_masking_rule_cache_misses_total",
			Help: "Masking rule cache misses",
		}),
		PacksAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_compliance_packs_assigned_total",
			Help: "Total compliance pack assignments",
		}),
		ProgressTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_compliance_progress_transitions_total",
			Help: "Total checklist item progress status transitions, by new status",
		}, []string{"status"}),
	}
}
