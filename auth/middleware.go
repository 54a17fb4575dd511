package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type subjectContextKey struct{}

// SubjectFromContext extracts the authenticated subject from the request context.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(subjectContextKey{}).(string); ok {
		return v
	}
	return ""
}

// Middleware validates bearer tokens.
type Middleware struct {
	jwt    *JWTManager
	cfg    Config
	logger *slog.Logger
}

func NewMiddleware(jwt *JWTManager, cfg Config, logger *slog.Logger) *Middleware {
	return &Middleware{jwt: jwt, cfg: cfg, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token with 401, and
// tokens whose subject is not allowed with 403.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+Audience+`"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		claims, err := m.jwt.ValidateToken(tokenStr)
		if err != nil {
			m.logger.Debug("Invalid JWT", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+Audience+`", error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !m.cfg.IsSubjectAllowed(claims.Subject) {
			m.logger.Warn("Token subject not allowed", "subject", claims.Subject)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
