package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
)

// WithAccessor attaches an accessor to the request context, simulating what
// the auth middleware does for authenticated requests.
func WithAccessor(req *http.Request, acc middleware.Accessor) *http.Request {
	return req.WithContext(middleware.WithAccessor(req.Context(), acc))
}

// NewAccessor builds a tenant-scoped accessor with fresh identifiers for
// handler tests.
func NewAccessor(role string) middleware.Accessor {
	tenant := id.TenantID(uuid.New())
	return middleware.Accessor{
		UserID:   id.UserID(uuid.New()),
		TenantID: &tenant,
		Email:    "tester@example.com",
		Role:     role,
		Kind:     "tenant_admin",
	}
}
