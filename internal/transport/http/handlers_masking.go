package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodia/internal/masking"
	"custodia/internal/platform/middleware"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// MaskingHandler exposes the masking-rule admin surface. The engine itself is
// exercised by the response interceptor, not by these routes.
type MaskingHandler struct {
	store  masking.RuleStore
	engine *masking.Engine
	logger *slog.Logger
}

func NewMaskingHandler(store masking.RuleStore, engine *masking.Engine, logger *slog.Logger) *MaskingHandler {
	return &MaskingHandler{store: store, engine: engine, logger: logger}
}

// Register mounts rule admin endpoints on the router.
func (h *MaskingHandler) Register(r chi.Router) {
	r.Route("/admin/masking-rules", func(r chi.Router) {
		r.Post("/", h.HandleCreateRule)
		r.Get("/", h.HandleListRules)
		r.Put("/{ruleId}", h.HandleUpdateRule)
		r.Patch("/{ruleId}/enabled", h.HandleSetEnabled)
	})
}

type maskingRuleRequest struct {
	TenantID       string `json:"tenant_id,omitempty"`
	Role           string `json:"role"`
	ResourceType   string `json:"resource_type"`
	FieldName      string `json:"field_name"`
	MaskingType    string `json:"masking_type"`
	Pattern        string `json:"pattern,omitempty"`
	PreserveLength bool   `json:"preserve_length,omitempty"`
	Priority       int    `json:"priority,omitempty"`
}

type maskingRuleResponse struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Role           string    `json:"role"`
	ResourceType   string    `json:"resource_type"`
	FieldName      string    `json:"field_name"`
	MaskingType    string    `json:"masking_type"`
	Pattern        string    `json:"pattern,omitempty"`
	PreserveLength bool      `json:"preserve_length"`
	Priority       int       `json:"priority"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func ruleToResponse(rule masking.Rule) maskingRuleResponse {
	resp := maskingRuleResponse{
		ID:             rule.ID.String(),
		Role:           rule.Role,
		ResourceType:   rule.ResourceType,
		FieldName:      rule.FieldName,
		MaskingType:    string(rule.Type),
		Pattern:        rule.Pattern,
		PreserveLength: rule.PreserveLength,
		Priority:       rule.Priority,
		Enabled:        rule.Enabled,
		CreatedAt:      rule.CreatedAt,
		UpdatedAt:      rule.UpdatedAt,
	}
	if rule.TenantID != nil {
		resp.TenantID = rule.TenantID.String()
	}
	return resp
}

func (req maskingRuleRequest) toRule() (*masking.Rule, error) {
	maskType, err := masking.ParseType(req.MaskingType)
	if err != nil {
		return nil, err
	}
	if req.FieldName == "" || req.ResourceType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource_type and field_name must not be empty")
	}
	role := req.Role
	if role == "" {
		role = masking.RoleWildcard
	}
	rule := &masking.Rule{
		Role:           role,
		ResourceType:   req.ResourceType,
		FieldName:      req.FieldName,
		Type:           maskType,
		Pattern:        req.Pattern,
		PreserveLength: req.PreserveLength,
		Priority:       req.Priority,
		Enabled:        true,
	}
	if req.TenantID != "" {
		tenantID, err := id.ParseTenantID(req.TenantID)
		if err != nil {
			return nil, err
		}
		rule.TenantID = &tenantID
	}
	return rule, nil
}

// HandleCreateRule handles POST /admin/masking-rules.
func (h *MaskingHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[maskingRuleRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := req.toRule()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	now := time.Now()
	rule.ID = uuid.New()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.store.Create(ctx, rule); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "create masking rule"))
		return
	}
	h.logger.InfoContext(ctx, "masking rule created",
		"request_id", middleware.GetRequestID(ctx),
		"rule_id", rule.ID.String(),
		"field", rule.FieldName,
	)
	httputil.WriteJSON(w, http.StatusCreated, ruleToResponse(*rule))
}

// HandleListRules handles GET /admin/masking-rules.
func (h *MaskingHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var tenantID *id.TenantID
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		parsed, err := id.ParseTenantID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		tenantID = &parsed
	}
	rules, err := h.store.List(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "list masking rules"))
		return
	}
	out := make([]maskingRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToResponse(rule))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": out})
}

// HandleUpdateRule handles PUT /admin/masking-rules/{ruleId}.
func (h *MaskingHandler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed rule id"))
		return
	}
	req, err := httputil.Decode[maskingRuleRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := req.toRule()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule.ID = ruleID
	rule.UpdatedAt = time.Now()

	if err := h.store.Update(ctx, rule); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "masking rule not found"))
		return
	}
	h.engine.Reset()
	httputil.WriteJSON(w, http.StatusOK, ruleToResponse(*rule))
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleSetEnabled handles PATCH /admin/masking-rules/{ruleId}/enabled.
func (h *MaskingHandler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed rule id"))
		return
	}
	req, err := httputil.Decode[setEnabledRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.store.SetEnabled(ctx, ruleID, req.Enabled); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "masking rule not found"))
		return
	}
	h.engine.Reset()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": ruleID.String(), "enabled": req.Enabled})
}
