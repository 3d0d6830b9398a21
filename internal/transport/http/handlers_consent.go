package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/consent"
	dErrors "custodia/pkg/domain-errors"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// ConsentHandler exposes the consent ledger.
type ConsentHandler struct {
	consent *consent.Service
	logger  *slog.Logger
}

func NewConsentHandler(consentService *consent.Service, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consent: consentService, logger: logger}
}

// Register mounts consent endpoints on the router.
func (h *ConsentHandler) Register(r chi.Router) {
	r.Route("/consent", func(r chi.Router) {
		r.Post("/", h.HandleRecordConsent)
		r.Post("/withdraw", h.HandleWithdrawConsent)
		r.Get("/check", h.HandleCheckConsent)
		r.Get("/subjects/{subjectType}/{subjectId}", h.HandleSubjectConsents)
	})
}

type recordConsentRequest struct {
	TenantID         string     `json:"tenant_id"`
	SubjectType      string     `json:"subject_type"`
	SubjectID        string     `json:"subject_id"`
	ConsentType      string     `json:"consent_type"`
	Purpose          string     `json:"purpose"`
	LegalBasis       string     `json:"legal_basis"`
	ConsentText      string     `json:"consent_text"`
	ConsentVersion   string     `json:"consent_version"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CollectedBy      string     `json:"collected_by,omitempty"`
	CollectionMethod string     `json:"collection_method,omitempty"`
	CollectionIP     string     `json:"collection_ip,omitempty"`
}

type consentResponse struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	SubjectType      string     `json:"subject_type"`
	SubjectID        string     `json:"subject_id"`
	ConsentType      string     `json:"consent_type"`
	Status           string     `json:"status"`
	Purpose          string     `json:"purpose,omitempty"`
	LegalBasis       string     `json:"legal_basis,omitempty"`
	ConsentVersion   string     `json:"consent_version,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	GrantedAt        time.Time  `json:"granted_at"`
	WithdrawnAt      *time.Time `json:"withdrawn_at,omitempty"`
	WithdrawalReason string     `json:"withdrawal_reason,omitempty"`
}

func consentToResponse(record consent.Record) consentResponse {
	return consentResponse{
		ID:               record.ID.String(),
		TenantID:         record.TenantID.String(),
		SubjectType:      string(record.SubjectType),
		SubjectID:        record.SubjectID,
		ConsentType:      string(record.ConsentType),
		Status:           string(record.Status),
		Purpose:          record.Purpose,
		LegalBasis:       string(record.LegalBasis),
		ConsentVersion:   record.ConsentVersion,
		ExpiresAt:        record.ExpiresAt,
		GrantedAt:        record.GrantedAt,
		WithdrawnAt:      record.WithdrawnAt,
		WithdrawalReason: record.WithdrawalReason,
	}
}

// HandleRecordConsent handles POST /consent.
func (h *ConsentHandler) HandleRecordConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[recordConsentRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	consentType, err := consent.ParseType(req.ConsentType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.RecordConsent(ctx, consent.RecordParams{
		TenantID:         tenantID,
		SubjectType:      consent.SubjectType(req.SubjectType),
		SubjectID:        req.SubjectID,
		ConsentType:      consentType,
		Purpose:          req.Purpose,
		LegalBasis:       consent.LegalBasis(req.LegalBasis),
		ConsentText:      req.ConsentText,
		ConsentVersion:   req.ConsentVersion,
		ExpiresAt:        req.ExpiresAt,
		CollectedBy:      req.CollectedBy,
		CollectionMethod: req.CollectionMethod,
		CollectionIP:     req.CollectionIP,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, consentToResponse(*record))
}

type withdrawConsentRequest struct {
	TenantID    string `json:"tenant_id"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	ConsentType string `json:"consent_type"`
	Reason      string `json:"reason"`
}

// HandleWithdrawConsent handles POST /consent/withdraw.
func (h *ConsentHandler) HandleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[withdrawConsentRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := consentKey(req.TenantID, req.SubjectType, req.SubjectID, req.ConsentType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.consent.WithdrawConsent(ctx, key, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"withdrawn": true})
}

// HandleCheckConsent handles GET /consent/check.
func (h *ConsentHandler) HandleCheckConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	key, err := consentKey(q.Get("tenant_id"), q.Get("subject_type"), q.Get("subject_id"), q.Get("consent_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	granted, record, err := h.consent.CheckConsent(ctx, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := map[string]any{"granted": granted}
	if record != nil {
		body["consent"] = consentToResponse(*record)
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// HandleSubjectConsents handles GET /consent/subjects/{subjectType}/{subjectId}.
func (h *ConsentHandler) HandleSubjectConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subjectType := consent.SubjectType(chi.URLParam(r, "subjectType"))
	subjectID := chi.URLParam(r, "subjectId")

	records, err := h.consent.GetSubjectConsents(ctx, tenantID, subjectType, subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, consentToResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}

func consentKey(tenantID, subjectType, subjectID, consentType string) (consent.Key, error) {
	parsedTenant, err := id.ParseTenantID(tenantID)
	if err != nil {
		return consent.Key{}, err
	}
	parsedType, err := consent.ParseType(consentType)
	if err != nil {
		return consent.Key{}, err
	}
	if subjectID == "" {
		return consent.Key{}, dErrors.New(dErrors.CodeValidation, "subject_id must not be empty")
	}
	return consent.Key{
		TenantID:    parsedTenant,
		SubjectType: consent.SubjectType(subjectType),
		SubjectID:   subjectID,
		ConsentType: parsedType,
	}, nil
}
