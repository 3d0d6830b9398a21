package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/masking"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	"custodia/pkg/testutil"
)

func newMaskingHarness(t *testing.T) (*masking.Engine, middleware.Accessor) {
	t.Helper()
	store := masking.NewInMemoryStore()
	tenant := id.TenantID(uuid.New())

	rule := masking.Rule{
		ID:           uuid.New(),
		TenantID:     &tenant,
		Role:         masking.RoleWildcard,
		ResourceType: "user",
		FieldName:    "email",
		Type:         masking.TypeFull,
		Enabled:      true,
	}
	require.NoError(t, store.Create(context.Background(), &rule))

	accessor := middleware.Accessor{
		UserID:   id.UserID(uuid.New()),
		TenantID: &tenant,
		Role:     "support",
	}
	return masking.NewEngine(store, testutil.Logger(), nil, time.Minute), accessor
}

func serveMasked(engine *masking.Engine, accessor middleware.Accessor, inner http.HandlerFunc) *httptest.ResponseRecorder {
	handler := MaskResponse(engine, "user", testutil.Logger())(inner)
	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	req = req.WithContext(middleware.WithAccessor(req.Context(), accessor))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMaskResponse(t *testing.T) {
	t.Run("masks a JSON object body", func(t *testing.T) {
		engine, accessor := newMaskingHarness(t)

		rec := serveMasked(engine, accessor, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"email": "johnsmith@example.com",
				"name":  "John",
			})
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "j*******h@example.com", body["email"])
		assert.Equal(t, "John", body["name"])
	})

	t.Run("masks every element of a JSON array body", func(t *testing.T) {
		engine, accessor := newMaskingHarness(t)

		rec := serveMasked(engine, accessor, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"email": "johnsmith@example.com"},
				{"email": "janedoeful@example.com"},
			})
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var body []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body, 2)
		assert.Equal(t, "j*******h@example.com", body[0]["email"])
		assert.Equal(t, "j********l@example.com", body[1]["email"])
	})

	t.Run("error responses pass through untouched", func(t *testing.T) {
		engine, accessor := newMaskingHarness(t)

		rec := serveMasked(engine, accessor, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"email":"johnsmith@example.com"}`))
		})

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"email":"johnsmith@example.com"}`, rec.Body.String())
	})

	t.Run("non-JSON bodies pass through untouched", func(t *testing.T) {
		engine, accessor := newMaskingHarness(t)

		rec := serveMasked(engine, accessor, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("plain text"))
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "plain text", rec.Body.String())
	})

	t.Run("requests without an accessor bypass masking", func(t *testing.T) {
		engine, _ := newMaskingHarness(t)

		handler := MaskResponse(engine, "user", testutil.Logger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"email":"johnsmith@example.com"}`))
		}))
		req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.JSONEq(t, `{"email":"johnsmith@example.com"}`, rec.Body.String())
	})
}
