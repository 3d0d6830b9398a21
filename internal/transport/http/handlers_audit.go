package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/audit"
	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// AuditHandler exposes the access-log query, flag, and anomaly surfaces.
type AuditHandler struct {
	audit  *audit.Service
	logger *slog.Logger
}

func NewAuditHandler(auditService *audit.Service, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: auditService, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit/access-logs", h.HandleListAccessLogs)
	r.Post("/audit/access-logs/{logId}/flag", h.HandleFlagAccessLog)
	r.Get("/audit/anomaly/{accessorId}", h.HandleDetectAnomaly)
}

type accessLogResponse struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	AccessorKind  string     `json:"accessor_kind"`
	AccessorID    string     `json:"accessor_id"`
	AccessorEmail string     `json:"accessor_email,omitempty"`
	AccessorRole  string     `json:"accessor_role,omitempty"`
	DataCategory  string     `json:"data_category"`
	ResourceType  string     `json:"resource_type"`
	ResourceID    string     `json:"resource_id,omitempty"`
	Fields        []string   `json:"fields,omitempty"`
	AccessKind    string     `json:"access_kind"`
	Reason        string     `json:"reason"`
	ReasonDetail  string     `json:"reason_detail,omitempty"`
	TicketRef     string     `json:"ticket_ref,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	RiskTier      string     `json:"risk_tier"`
	Flagged       bool       `json:"flagged"`
	FlagReason    string     `json:"flag_reason,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func entryToResponse(entry audit.Entry) accessLogResponse {
	resp := accessLogResponse{
		ID:            entry.ID.String(),
		AccessorKind:  string(entry.AccessorKind),
		AccessorID:    entry.AccessorID.String(),
		AccessorEmail: entry.AccessorEmail,
		AccessorRole:  entry.AccessorRole,
		DataCategory:  string(entry.DataCategory),
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Fields:        entry.Fields,
		AccessKind:    string(entry.AccessKind),
		Reason:        string(entry.Reason),
		ReasonDetail:  entry.ReasonDetail,
		TicketRef:     entry.TicketRef,
		IPAddress:     entry.Client.IPAddress,
		UserAgent:     entry.Client.UserAgent,
		RiskTier:      string(entry.RiskTier),
		Flagged:       entry.Flagged,
		FlagReason:    entry.FlagReason,
		ReviewedAt:    entry.ReviewedAt,
		CreatedAt:     entry.CreatedAt,
	}
	if entry.TenantID != nil {
		resp.TenantID = entry.TenantID.String()
	}
	if entry.ReviewedBy != nil {
		resp.ReviewedBy = entry.ReviewedBy.String()
	}
	return resp
}

// HandleListAccessLogs handles GET /audit/access-logs.
func (h *AuditHandler) HandleListAccessLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, total, err := h.audit.GetAccessLogs(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]accessLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryToResponse(entry))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"logs":   out,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		DataCategory: audit.DataCategory(q.Get("data_category")),
		RiskTier:     audit.RiskTier(q.Get("risk_tier")),
		Limit:        parseIntDefault(q.Get("limit"), 50),
		Offset:       parseIntDefault(q.Get("offset"), 0),
	}
	if raw := q.Get("tenant_id"); raw != "" {
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.TenantID = &tenantID
	}
	if raw := q.Get("accessor_id"); raw != "" {
		accessorID, err := id.ParseUserID(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.AccessorID = &accessorID
	}
	if raw := q.Get("flagged"); raw != "" {
		flagged := raw == "true"
		filter.Flagged = &flagged
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return audit.Filter{}, err
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return audit.Filter{}, err
	}
	return filter, nil
}

// HandleFlagAccessLog handles POST /audit/access-logs/{logId}/flag.
func (h *AuditHandler) HandleFlagAccessLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	logID, err := uuid.Parse(chi.URLParam(r, "logId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed log id"))
		return
	}
	req, err := httputil.Decode[struct {
		Reason string `json:"reason"`
	}](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.audit.FlagAccessLog(ctx, logID, req.Reason, accessor.UserID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "access log flagged",
		"request_id", middleware.GetRequestID(ctx),
		"log_id", logID.String(),
		"reviewer_id", accessor.UserID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": logID.String(), "flagged": true})
}

// HandleDetectAnomaly handles GET /audit/anomaly/{accessorId}.
func (h *AuditHandler) HandleDetectAnomaly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessorID, err := id.ParseUserID(chi.URLParam(r, "accessorId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var tenantID *id.TenantID
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		parsed, err := id.ParseTenantID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		tenantID = &parsed
	}

	result, err := h.audit.DetectUnusualAccess(ctx, accessorID, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"accessor_id":    accessorID.String(),
		"unusual":        result.Unusual,
		"risk_score":     result.RiskScore,
		"reasons":        result.Reasons,
		"last_hour":      result.Window.LastHour,
		"last_day":       result.Window.LastDay,
		"phi_last_hour":  result.Window.PHILastHour,
	})
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "timestamps must be RFC3339")
	}
	return &value, nil
}
