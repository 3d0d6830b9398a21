package httptransport

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/mssola/useragent"

	"custodia/internal/audit"
	"custodia/internal/platform/middleware"
	"custodia/pkg/platform/httputil"
	dErrors "custodia/pkg/domain-errors"
)

// accessReasonHeader is the declared justification a caller sends when
// touching sensitive data. Required for PHI routes.
const accessReasonHeader = "X-Access-Reason"

// anomalyWarnScore is the risk score at which the interceptor logs a warning.
// The heuristic never blocks the request.
const anomalyWarnScore = 50

// RouteConfig classifies one path prefix for access logging.
type RouteConfig struct {
	Prefix         string
	Category       audit.DataCategory
	ResourceType   string
	ReasonRequired bool
}

// routeOverride reclassifies paths the prefix table gets wrong, matched
// before the prefixes.
type routeOverride struct {
	pattern *regexp.Regexp
	config  RouteConfig
}

// AccessLogInterceptor audits every request that reaches a sensitive route.
// Logging runs off the request path and never fails the caller; only the
// missing-PHI-reason policy check is enforced inline.
type AccessLogInterceptor struct {
	audit     *audit.Service
	logger    *slog.Logger
	routes    []RouteConfig
	overrides []routeOverride
}

func NewAccessLogInterceptor(auditService *audit.Service, logger *slog.Logger) *AccessLogInterceptor {
	return &AccessLogInterceptor{
		audit:  auditService,
		logger: logger,
		routes: []RouteConfig{
			{Prefix: "/patients", Category: audit.CategoryPHI, ResourceType: "patient", ReasonRequired: true},
			{Prefix: "/medical-records", Category: audit.CategoryPHI, ResourceType: "medical_record", ReasonRequired: true},
			{Prefix: "/users", Category: audit.CategoryPII, ResourceType: "user"},
			{Prefix: "/profiles", Category: audit.CategoryPII, ResourceType: "profile"},
			{Prefix: "/consent", Category: audit.CategoryPII, ResourceType: "consent_record"},
			{Prefix: "/dsars", Category: audit.CategoryPII, ResourceType: "dsar_request"},
			{Prefix: "/payments", Category: audit.CategoryFinancial, ResourceType: "payment"},
			{Prefix: "/billing", Category: audit.CategoryFinancial, ResourceType: "billing_account"},
		},
		overrides: []routeOverride{
			{
				pattern: regexp.MustCompile(`^/patients/[^/]+/records(/.*)?$`),
				config:  RouteConfig{Category: audit.CategoryPHI, ResourceType: "medical_record", ReasonRequired: true},
			},
			{
				pattern: regexp.MustCompile(`^/admin/users(/.*)?$`),
				config:  RouteConfig{Category: audit.CategoryPII, ResourceType: "user"},
			},
		},
	}
}

// Middleware classifies the request, enforces the PHI reason header, and
// audits the touch without blocking the response.
func (i *AccessLogInterceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		config, sensitive := i.classify(r.URL.Path)
		if !sensitive {
			next.ServeHTTP(w, r)
			return
		}

		reason, err := i.resolveReason(r, config)
		if err != nil {
			valid := make([]string, 0, len(audit.ValidReasons()))
			for _, candidate := range audit.ValidReasons() {
				valid = append(valid, string(candidate))
			}
			httputil.WriteErrorDetails(w, err, map[string]any{
				"header":        accessReasonHeader,
				"valid_reasons": valid,
			})
			return
		}

		i.record(r, config, reason)
		next.ServeHTTP(w, r)
	})
}

func (i *AccessLogInterceptor) classify(path string) (RouteConfig, bool) {
	for _, override := range i.overrides {
		if override.pattern.MatchString(path) {
			return override.config, true
		}
	}
	for _, route := range i.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route, true
		}
	}
	return RouteConfig{}, false
}

// resolveReason parses the reason header. PHI routes reject a missing or
// unknown reason; everything else defaults to system_maintenance.
func (i *AccessLogInterceptor) resolveReason(r *http.Request, config RouteConfig) (audit.AccessReason, error) {
	raw := r.Header.Get(accessReasonHeader)
	if raw == "" {
		if config.ReasonRequired {
			return "", dErrors.New(dErrors.CodePolicyViolation,
				"PHI access requires the "+accessReasonHeader+" header")
		}
		return audit.ReasonSystemMaintenance, nil
	}
	return audit.ParseAccessReason(raw)
}

// record audits the touch on a detached context so client disconnects never
// cancel the write, then runs the anomaly heuristic.
func (i *AccessLogInterceptor) record(r *http.Request, config RouteConfig, reason audit.AccessReason) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		return
	}

	params := audit.LogParams{
		TenantID:      accessor.TenantID,
		AccessorKind:  accessorKind(accessor.Kind),
		AccessorID:    accessor.UserID,
		AccessorEmail: accessor.Email,
		AccessorRole:  accessor.Role,
		DataCategory:  config.Category,
		ResourceType:  config.ResourceType,
		ResourceID:    extractResourceID(r.URL.Path),
		AccessKind:    accessKind(r.Method),
		Reason:        reason,
		ReasonDetail:  r.Header.Get("X-Access-Reason-Detail"),
		TicketRef:     r.Header.Get("X-Ticket-Ref"),
		Client:        clientMetadata(r, accessor.SessionID),
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := i.audit.LogSensitiveAccess(detached, params); err != nil {
			i.logger.ErrorContext(detached, "access audit failed",
				"path", r.URL.Path,
				"error", err,
			)
			return
		}
		result, err := i.audit.DetectUnusualAccess(detached, accessor.UserID, accessor.TenantID)
		if err != nil {
			return
		}
		if result.RiskScore >= anomalyWarnScore {
			i.logger.WarnContext(detached, "unusual access pattern",
				"accessor_id", accessor.UserID.String(),
				"risk_score", result.RiskScore,
				"reasons", result.Reasons,
			)
		}
	}()
}

func accessorKind(kind string) audit.AccessorKind {
	switch audit.AccessorKind(kind) {
	case audit.AccessorTenantAdmin, audit.AccessorPlatformAdmin, audit.AccessorSystem:
		return audit.AccessorKind(kind)
	}
	return audit.AccessorEndUser
}

func accessKind(method string) audit.AccessKind {
	switch method {
	case http.MethodDelete:
		return audit.AccessDelete
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return audit.AccessModify
	}
	return audit.AccessView
}

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
)

// extractResourceID returns the first UUID- or numeric-shaped path segment.
func extractResourceID(path string) string {
	for _, segment := range strings.Split(path, "/") {
		if uuidSegment.MatchString(segment) || numericSegment.MatchString(segment) {
			return segment
		}
	}
	return ""
}

func clientMetadata(r *http.Request, sessionID string) audit.ClientMetadata {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	} else if idx := strings.IndexByte(ip, ','); idx >= 0 {
		ip = strings.TrimSpace(ip[:idx])
	}

	meta := audit.ClientMetadata{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		SessionID: sessionID,
	}
	if meta.UserAgent != "" {
		ua := useragent.New(meta.UserAgent)
		browser, version := ua.Browser()
		if browser != "" {
			meta.Browser = browser + " " + version
		}
		meta.OS = ua.OS()
	}
	return meta
}
