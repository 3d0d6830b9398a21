package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/breach"
	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// BreachHandler exposes the breach register.
type BreachHandler struct {
	breach *breach.Service
	logger *slog.Logger
}

func NewBreachHandler(breachService *breach.Service, logger *slog.Logger) *BreachHandler {
	return &BreachHandler{breach: breachService, logger: logger}
}

// Register mounts breach endpoints on the router.
func (h *BreachHandler) Register(r chi.Router) {
	r.Route("/breaches", func(r chi.Router) {
		r.Post("/", h.HandleReportBreach)
		r.Get("/", h.HandleListBreaches)
		r.Get("/{breachId}", h.HandleGetBreach)
	})
}

type reportBreachRequest struct {
	TenantID           string     `json:"tenant_id,omitempty"`
	BreachType         string     `json:"breach_type"`
	Severity           string     `json:"severity"`
	Regulation         string     `json:"regulation,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	DiscoveredAt       time.Time  `json:"discovered_at"`
	OccurredAt         *time.Time `json:"occurred_at,omitempty"`
	AffectedCategories []string   `json:"affected_categories,omitempty"`
	AffectedSubjects   int        `json:"affected_subjects,omitempty"`
	ContainmentActions string     `json:"containment_actions,omitempty"`
}

type breachResponse struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id,omitempty"`
	BreachType       string     `json:"breach_type"`
	Severity         string     `json:"severity"`
	Regulation       string     `json:"regulation,omitempty"`
	Title            string     `json:"title"`
	DiscoveredAt     time.Time  `json:"discovered_at"`
	OccurredAt       *time.Time `json:"occurred_at,omitempty"`
	ReportDeadline   time.Time  `json:"report_deadline"`
	AffectedSubjects int        `json:"affected_subjects"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

func breachToResponse(record breach.Record) breachResponse {
	resp := breachResponse{
		ID:               record.ID.String(),
		BreachType:       string(record.BreachType),
		Severity:         string(record.Severity),
		Regulation:       record.Regulation,
		Title:            record.Title,
		DiscoveredAt:     record.DiscoveredAt,
		OccurredAt:       record.OccurredAt,
		ReportDeadline:   record.ReportDeadline,
		AffectedSubjects: record.AffectedSubjects,
		Status:           string(record.Status),
		CreatedAt:        record.CreatedAt,
	}
	if record.TenantID != nil {
		resp.TenantID = record.TenantID.String()
	}
	return resp
}

// HandleReportBreach handles POST /breaches.
func (h *BreachHandler) HandleReportBreach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, err := httputil.Decode[reportBreachRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	params := breach.ReportParams{
		BreachType:         breach.Type(req.BreachType),
		Severity:           breach.Severity(req.Severity),
		Regulation:         req.Regulation,
		Title:              req.Title,
		Description:        req.Description,
		DiscoveredAt:       req.DiscoveredAt,
		OccurredAt:         req.OccurredAt,
		AffectedCategories: req.AffectedCategories,
		AffectedSubjects:   req.AffectedSubjects,
		ContainmentActions: req.ContainmentActions,
		ReportedBy:         accessor.UserID,
	}
	if req.TenantID != "" {
		tenantID, err := id.ParseTenantID(req.TenantID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		params.TenantID = &tenantID
	}

	record, err := h.breach.ReportDataBreach(ctx, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, breachToResponse(*record))
}

// HandleListBreaches handles GET /breaches.
func (h *BreachHandler) HandleListBreaches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := breach.Filter{
		Severity: breach.Severity(q.Get("severity")),
		Status:   breach.Status(q.Get("status")),
		Limit:    parseIntDefault(q.Get("limit"), 50),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	if raw := q.Get("tenant_id"); raw != "" {
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.TenantID = &tenantID
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, total, err := h.breach.GetBreaches(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]breachResponse, 0, len(records))
	for _, record := range records {
		out = append(out, breachToResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"breaches": out,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// HandleGetBreach handles GET /breaches/{breachId}.
func (h *BreachHandler) HandleGetBreach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	breachID, err := uuid.Parse(chi.URLParam(r, "breachId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed breach id"))
		return
	}
	record, err := h.breach.GetBreach(ctx, breachID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, breachToResponse(*record))
}
