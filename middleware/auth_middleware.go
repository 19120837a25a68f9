package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/utils"
)

// TokenValidator turns a bearer token into gateway claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware guards the /api/v1 routes
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// claims of accepted ones in the request context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.WithRequestID(ctx, m.logger)

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			logger.Warn("request without bearer token", zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			logger.Warn("bearer token rejected", zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		logger.Debug("caller authenticated",
			zap.String("sub", claims.Subject),
			zap.String("role", claims.Role))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireRole admits only callers whose claims carry role. Mount it after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				observability.WithRequestID(r.Context(), m.logger).
					Error("role check without authenticated claims", zap.String("required_role", role))
				_ = utils.WriteUnauthorized(w, "Authentication required")
			case claims.Role != role:
				observability.WithRequestID(r.Context(), m.logger).Warn("insufficient permissions",
					zap.String("sub", claims.Subject),
					zap.String("required_role", role),
					zap.String("role", claims.Role))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
