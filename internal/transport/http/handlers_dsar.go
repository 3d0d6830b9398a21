package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/dsar"
	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// DSARHandler exposes the data-subject-request workflow.
type DSARHandler struct {
	dsar   *dsar.Service
	logger *slog.Logger
}

func NewDSARHandler(dsarService *dsar.Service, logger *slog.Logger) *DSARHandler {
	return &DSARHandler{dsar: dsarService, logger: logger}
}

// Register mounts DSAR endpoints on the router.
func (h *DSARHandler) Register(r chi.Router) {
	r.Route("/dsars", func(r chi.Router) {
		r.Post("/", h.HandleCreateDSAR)
		r.Get("/", h.HandleListDSARs)
		r.Patch("/{requestId}/status", h.HandleUpdateStatus)
		r.Get("/{requestId}/activity", h.HandleActivityLog)
	})
}

type createDSARRequest struct {
	TenantID       string   `json:"tenant_id"`
	RequestType    string   `json:"request_type"`
	SubjectName    string   `json:"subject_name"`
	SubjectEmail   string   `json:"subject_email"`
	SubjectID      string   `json:"subject_id,omitempty"`
	DataCategories []string `json:"data_categories,omitempty"`
	Regulation     string   `json:"regulation,omitempty"`
	Details        string   `json:"details,omitempty"`
}

type dsarResponse struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	RequestType      string     `json:"request_type"`
	SubjectName      string     `json:"subject_name,omitempty"`
	SubjectEmail     string     `json:"subject_email"`
	Regulation       string     `json:"regulation,omitempty"`
	Status           string     `json:"status"`
	ResponseDeadline time.Time  `json:"response_deadline"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func dsarToResponse(request dsar.Request) dsarResponse {
	return dsarResponse{
		ID:               request.ID.String(),
		TenantID:         request.TenantID.String(),
		RequestType:      string(request.RequestType),
		SubjectName:      request.SubjectName,
		SubjectEmail:     request.SubjectEmail,
		Regulation:       string(request.Regulation),
		Status:           string(request.Status),
		ResponseDeadline: request.ResponseDeadline,
		AcknowledgedAt:   request.AcknowledgedAt,
		CompletedAt:      request.CompletedAt,
		CreatedAt:        request.CreatedAt,
		UpdatedAt:        request.UpdatedAt,
	}
}

// HandleCreateDSAR handles POST /dsars.
func (h *DSARHandler) HandleCreateDSAR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, err := httputil.Decode[createDSARRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requestType, err := dsar.ParseRequestType(req.RequestType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	request, err := h.dsar.CreateDSAR(ctx, dsar.CreateParams{
		TenantID:       tenantID,
		RequestType:    requestType,
		SubjectName:    req.SubjectName,
		SubjectEmail:   req.SubjectEmail,
		SubjectID:      req.SubjectID,
		DataCategories: req.DataCategories,
		Regulation:     dsar.Regulation(req.Regulation),
		Details:        req.Details,
		CreatedBy:      accessor.UserID,
		CreatedByEmail: accessor.Email,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dsarToResponse(*request))
}

// HandleListDSARs handles GET /dsars.
func (h *DSARHandler) HandleListDSARs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := dsar.Filter{
		Status:       dsar.Status(q.Get("status")),
		SubjectEmail: q.Get("subject_email"),
		Limit:        parseIntDefault(q.Get("limit"), 50),
		Offset:       parseIntDefault(q.Get("offset"), 0),
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

	requests, total, err := h.dsar.GetDSARs(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]dsarResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, dsarToResponse(request))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"requests": out,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

type updateDSARStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// HandleUpdateStatus handles PATCH /dsars/{requestId}/status.
func (h *DSARHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request id"))
		return
	}
	req, err := httputil.Decode[updateDSARStatusRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	request, err := h.dsar.UpdateDSARStatus(ctx, requestID, dsar.Status(req.Status), accessor.UserID, accessor.Email, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dsarToResponse(*request))
}

type dsarActivityResponse struct {
	ID               string    `json:"id"`
	Action           string    `json:"action"`
	PreviousStatus   string    `json:"previous_status,omitempty"`
	NewStatus        string    `json:"new_status"`
	PerformedBy      string    `json:"performed_by"`
	PerformedByEmail string    `json:"performed_by_email,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// HandleActivityLog handles GET /dsars/{requestId}/activity.
func (h *DSARHandler) HandleActivityLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request id"))
		return
	}

	entries, err := h.dsar.GetDSARActivityLog(ctx, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]dsarActivityResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, dsarActivityResponse{
			ID:               entry.ID.String(),
			Action:           entry.Action,
			PreviousStatus:   string(entry.PreviousStatus),
			NewStatus:        string(entry.NewStatus),
			PerformedBy:      entry.PerformedBy.String(),
			PerformedByEmail: entry.PerformedByEmail,
			Notes:            entry.Notes,
			CreatedAt:        entry.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"activity": out})
}
