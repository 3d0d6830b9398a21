package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/compliance"
	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// ComplianceHandler exposes the compliance program tracker.
type ComplianceHandler struct {
	compliance *compliance.Service
	logger     *slog.Logger
}

func NewComplianceHandler(complianceService *compliance.Service, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{compliance: complianceService, logger: logger}
}

// Register mounts tracker endpoints on the router.
func (h *ComplianceHandler) Register(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Post("/packs", h.HandleCreatePack)
		r.Get("/packs", h.HandleListPacks)
		r.Post("/packs/{packId}/items", h.HandleAddItem)
		r.Get("/packs/{packId}/items", h.HandleListItems)
		r.Delete("/items/{itemId}", h.HandleRemoveItem)
		r.Post("/packs/{packId}/assign", h.HandleAssignPack)
		r.Patch("/tenants/{tenantId}/packs/{packId}/items/{itemId}", h.HandleUpdateProgress)
		r.Get("/tenants/{tenantId}/summary", h.HandleSummary)
		r.Post("/seed", h.HandleSeed)
	})
}

type createPackRequest struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Regulation    string   `json:"regulation,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	BusinessTypes []string `json:"business_types,omitempty"`
	Default       bool     `json:"default,omitempty"`
}

type packResponse struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Regulation string    `json:"regulation,omitempty"`
	Active     bool      `json:"active"`
	Default    bool      `json:"default"`
	TotalItems int       `json:"total_items"`
	CreatedAt  time.Time `json:"created_at"`
}

func packToResponse(pack compliance.Pack) packResponse {
	return packResponse{
		ID:         pack.ID.String(),
		Code:       pack.Code,
		Name:       pack.Name,
		Regulation: pack.Regulation,
		Active:     pack.Active,
		Default:    pack.Default,
		TotalItems: pack.TotalItems,
		CreatedAt:  pack.CreatedAt,
	}
}

// HandleCreatePack handles POST /compliance/packs.
func (h *ComplianceHandler) HandleCreatePack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[createPackRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pack, err := h.compliance.CreatePack(ctx, compliance.PackParams{
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		Regulation:    req.Regulation,
		Countries:     req.Countries,
		BusinessTypes: req.BusinessTypes,
		Default:       req.Default,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, packToResponse(*pack))
}

// HandleListPacks handles GET /compliance/packs.
func (h *ComplianceHandler) HandleListPacks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packs, err := h.compliance.GetPacks(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]packResponse, 0, len(packs))
	for _, pack := range packs {
		out = append(out, packToResponse(pack))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"packs": out})
}

type addItemRequest struct {
	Category         string   `json:"category,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Guidance         string   `json:"guidance,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	Mandatory        bool     `json:"mandatory,omitempty"`
	RequiresEvidence bool     `json:"requires_evidence,omitempty"`
	EvidenceTypes    []string `json:"evidence_types,omitempty"`
	DueDays          *int     `json:"due_days,omitempty"`
	SortOrder        int      `json:"sort_order,omitempty"`
}

type itemResponse struct {
	ID        string `json:"id"`
	PackID    string `json:"pack_id"`
	Category  string `json:"category,omitempty"`
	Title     string `json:"title"`
	Priority  string `json:"priority,omitempty"`
	Mandatory bool   `json:"mandatory"`
	DueDays   *int   `json:"due_days,omitempty"`
	SortOrder int    `json:"sort_order"`
}

func itemToResponse(item compliance.ChecklistItem) itemResponse {
	return itemResponse{
		ID:        item.ID.String(),
		PackID:    item.PackID.String(),
		Category:  item.Category,
		Title:     item.Title,
		Priority:  string(item.Priority),
		Mandatory: item.Mandatory,
		DueDays:   item.DueDays,
		SortOrder: item.SortOrder,
	}
}

// HandleAddItem handles POST /compliance/packs/{packId}/items.
func (h *ComplianceHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packID, err := uuid.Parse(chi.URLParam(r, "packId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed pack id"))
		return
	}
	req, err := httputil.Decode[addItemRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.compliance.AddChecklistItem(ctx, packID, compliance.ItemParams{
		Category:         req.Category,
		Title:            req.Title,
		Description:      req.Description,
		Guidance:         req.Guidance,
		Priority:         compliance.ItemPriority(req.Priority),
		Mandatory:        req.Mandatory,
		RequiresEvidence: req.RequiresEvidence,
		EvidenceTypes:    req.EvidenceTypes,
		DueDays:          req.DueDays,
		SortOrder:        req.SortOrder,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, itemToResponse(*item))
}

// HandleListItems handles GET /compliance/packs/{packId}/items.
func (h *ComplianceHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	packID, err := uuid.Parse(chi.URLParam(r, "packId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed pack id"))
		return
	}
	items, err := h.compliance.GetPackItems(ctx, packID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, itemToResponse(item))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// HandleRemoveItem handles DELETE /compliance/items/{itemId}.
func (h *ComplianceHandler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed item id"))
		return
	}
	if err := h.compliance.RemoveChecklistItem(ctx, itemID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignPackRequest struct {
	TenantID string     `json:"tenant_id"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

type assignmentResponse struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	PackID               string     `json:"pack_id"`
	Status               string     `json:"status"`
	CompletionPercentage int        `json:"completion_percentage"`
	DueDate              *time.Time `json:"due_date,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func assignmentToResponse(assignment compliance.TenantPack) assignmentResponse {
	return assignmentResponse{
		ID:                   assignment.ID.String(),
		TenantID:             assignment.TenantID.String(),
		PackID:               assignment.PackID.String(),
		Status:               string(assignment.Status),
		CompletionPercentage: assignment.CompletionPercentage,
		DueDate:              assignment.DueDate,
		CompletedAt:          assignment.CompletedAt,
	}
}

// HandleAssignPack handles POST /compliance/packs/{packId}/assign.
func (h *ComplianceHandler) HandleAssignPack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	packID, err := uuid.Parse(chi.URLParam(r, "packId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed pack id"))
		return
	}
	req, err := httputil.Decode[assignPackRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	assignment, err := h.compliance.AssignPackToTenant(ctx, tenantID, packID, accessor.UserID, req.DueDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, assignmentToResponse(*assignment))
}

type updateProgressRequest struct {
	Status              *string `json:"status,omitempty"`
	Notes               *string `json:"notes,omitempty"`
	EvidenceRef         *string `json:"evidence_ref,omitempty"`
	EvidenceDescription *string `json:"evidence_description,omitempty"`
	AssignedTo          *string `json:"assigned_to,omitempty"`
}

// HandleUpdateProgress handles
// PATCH /compliance/tenants/{tenantId}/packs/{packId}/items/{itemId}.
func (h *ComplianceHandler) HandleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessor, ok := middleware.GetAccessor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	packID, err := uuid.Parse(chi.URLParam(r, "packId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed pack id"))
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed item id"))
		return
	}
	req, err := httputil.Decode[updateProgressRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	patch := compliance.ProgressPatch{
		Notes:               req.Notes,
		EvidenceRef:         req.EvidenceRef,
		EvidenceDescription: req.EvidenceDescription,
	}
	if req.Status != nil {
		status, err := compliance.ParseProgressStatus(*req.Status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		patch.Status = &status
	}
	if req.AssignedTo != nil {
		assignee, err := id.ParseUserID(*req.AssignedTo)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		patch.AssignedTo = &assignee
	}

	row, err := h.compliance.UpdateItemProgress(ctx, tenantID, packID, itemID, patch, accessor.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"item_id":      row.ItemID.String(),
		"status":       string(row.Status),
		"started_at":   row.StartedAt,
		"completed_at": row.CompletedAt,
	})
}

// HandleSummary handles GET /compliance/tenants/{tenantId}/summary.
func (h *ComplianceHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.compliance.GetComplianceSummary(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tenant_id":          summary.TenantID.String(),
		"total_packs":        summary.TotalPacks,
		"completed_packs":    summary.CompletedPacks,
		"total_items":        summary.TotalItems,
		"completed_items":    summary.CompletedItems,
		"in_progress_items":  summary.InProgressItems,
		"overdue_items":      summary.OverdueItems,
		"overall_percentage": summary.OverallPercentage,
	})
}

// HandleSeed handles POST /compliance/seed.
func (h *ComplianceHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.compliance.SeedDefaultPacks(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"seeded": true})
}
