package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/audit"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	"custodia/pkg/testutil"
)

func newInterceptorHarness(t *testing.T) (*audit.InMemoryStore, http.Handler, middleware.Accessor) {
	t.Helper()
	store := audit.NewInMemoryStore()
	service := audit.NewService(store, nil, testutil.Logger(), nil)
	interceptor := NewAccessLogInterceptor(service, testutil.Logger())

	tenant := id.TenantID(uuid.New())
	accessor := middleware.Accessor{
		UserID:   id.UserID(uuid.New()),
		TenantID: &tenant,
		Email:    "agent@example.com",
		Role:     "support",
		Kind:     string(audit.AccessorTenantAdmin),
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return store, interceptor.Middleware(okHandler), accessor
}

func doRequest(handler http.Handler, accessor middleware.Accessor, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(middleware.WithAccessor(req.Context(), accessor))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAccessLogInterceptorPHIReason(t *testing.T) {
	t.Run("PHI route without a reason is rejected with guidance", func(t *testing.T) {
		_, handler, accessor := newInterceptorHarness(t)

		rec := doRequest(handler, accessor, http.MethodGet, "/patients/123", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Error   string         `json:"error"`
			Details map[string]any `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "policy_violation", body.Error)
		assert.Equal(t, "X-Access-Reason", body.Details["header"])
		assert.NotEmpty(t, body.Details["valid_reasons"])
	})

	t.Run("PHI route with a valid reason passes", func(t *testing.T) {
		_, handler, accessor := newInterceptorHarness(t)

		rec := doRequest(handler, accessor, http.MethodGet, "/patients/123", map[string]string{
			"X-Access-Reason": "support_ticket",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("an unknown reason is rejected even on non-PHI routes", func(t *testing.T) {
		_, handler, accessor := newInterceptorHarness(t)

		rec := doRequest(handler, accessor, http.MethodGet, "/users/42", map[string]string{
			"X-Access-Reason": "curiosity",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAccessLogInterceptorRecords(t *testing.T) {
	t.Run("non-PHI access defaults to system_maintenance", func(t *testing.T) {
		store, handler, accessor := newInterceptorHarness(t)

		rec := doRequest(handler, accessor, http.MethodGet, "/users/42", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Eventually(t, func() bool {
			_, total, err := store.List(t.Context(), audit.Filter{})
			return err == nil && total == 1
		}, time.Second, 5*time.Millisecond)

		entries, _, err := store.List(t.Context(), audit.Filter{})
		require.NoError(t, err)
		entry := entries[0]
		assert.Equal(t, audit.ReasonSystemMaintenance, entry.Reason)
		assert.Equal(t, audit.CategoryPII, entry.DataCategory)
		assert.Equal(t, "user", entry.ResourceType)
		assert.Equal(t, "42", entry.ResourceID)
		assert.Equal(t, audit.AccessView, entry.AccessKind)
	})

	t.Run("write methods audit as modify", func(t *testing.T) {
		store, handler, accessor := newInterceptorHarness(t)

		doRequest(handler, accessor, http.MethodPatch, "/billing/7", nil)

		require.Eventually(t, func() bool {
			entries, _, err := store.List(t.Context(), audit.Filter{})
			return err == nil && len(entries) == 1 &&
				entries[0].AccessKind == audit.AccessModify &&
				entries[0].DataCategory == audit.CategoryFinancial
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("non-sensitive routes are not audited", func(t *testing.T) {
		store, handler, accessor := newInterceptorHarness(t)

		rec := doRequest(handler, accessor, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		time.Sleep(20 * time.Millisecond)
		_, total, err := store.List(t.Context(), audit.Filter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestClassifyOverrides(t *testing.T) {
	interceptor := NewAccessLogInterceptor(nil, testutil.Logger())

	t.Run("nested patient records reclassify as medical records", func(t *testing.T) {
		config, sensitive := interceptor.classify("/patients/abc/records/5")
		require.True(t, sensitive)
		assert.Equal(t, "medical_record", config.ResourceType)
		assert.True(t, config.ReasonRequired)
	})

	t.Run("admin user views are PII", func(t *testing.T) {
		config, sensitive := interceptor.classify("/admin/users/42")
		require.True(t, sensitive)
		assert.Equal(t, audit.CategoryPII, config.Category)
		assert.False(t, config.ReasonRequired)
	})
}

func TestExtractResourceID(t *testing.T) {
	resourceID := uuid.New().String()
	assert.Equal(t, resourceID, extractResourceID("/patients/"+resourceID+"/records"))
	assert.Equal(t, "42", extractResourceID("/users/42"))
	assert.Empty(t, extractResourceID("/users/me/profile"))
}
