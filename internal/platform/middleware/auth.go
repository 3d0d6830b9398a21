package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "custodia/pkg/domain"
)

// Accessor is the already-resolved identity attached to each request by the
// upstream auth service and decoded here. The privacy core never resolves
// credentials itself; it only consumes this identity.
type Accessor struct {
	UserID    id.UserID
	TenantID  *id.TenantID
	Email     string
	Role      string
	Kind      string
	SessionID string
}

type contextKeyAccessor struct{}

// ContextKeyAccessor is exported for tests that prime request context.
var ContextKeyAccessor = contextKeyAccessor{}

// GetAccessor retrieves the authenticated accessor from the context.
func GetAccessor(ctx context.Context) (Accessor, bool) {
	acc, ok := ctx.Value(ContextKeyAccessor).(Accessor)
	return acc, ok
}

// WithAccessor attaches an accessor to the context. Exported for tests and
// for system-context callers that bypass HTTP.
func WithAccessor(ctx context.Context, acc Accessor) context.Context {
	return context.WithValue(ctx, ContextKeyAccessor, acc)
}

// TokenValidator validates an upstream-issued bearer token into an Accessor.
type TokenValidator interface {
	ValidateToken(tokenString string) (Accessor, error)
}

// JWTValidator validates HS256 tokens minted by the upstream auth service.
type JWTValidator struct {
	signingKey []byte
}

func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

type accessorClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Kind      string `json:"accessor_kind,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTValidator) ValidateToken(tokenString string) (Accessor, error) {
	claims := &accessorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.signingKey, nil
	})
	if err != nil {
		return Accessor{}, err
	}
	if !token.Valid {
		return Accessor{}, jwt.ErrTokenUnverifiable
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return Accessor{}, err
	}
	acc := Accessor{
		UserID:    userID,
		Email:     claims.Email,
		Role:      claims.Role,
		Kind:      claims.Kind,
		SessionID: claims.SessionID,
	}
	if claims.TenantID != "" {
		tenantID, err := id.ParseTenantID(claims.TenantID)
		if err != nil {
			return Accessor{}, err
		}
		acc.TenantID = &tenantID
	}
	return acc, nil
}

// RequireAuth validates the bearer token and stores the accessor in context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			acc, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccessor(ctx, acc)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
