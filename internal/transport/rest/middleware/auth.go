package middleware

import (
	"context"
	"net/http"
	"strings"

	"readingsurvey/internal/service"
)

type contextKey string

const TabIDKey contextKey = "tabId"

// AuthMiddleware binds requests to a tab via its token
type AuthMiddleware struct {
	tokens *service.TabTokenService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(tokens *service.TabTokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireTab validates the tab token from the Authorization header or the
// token query param
func (m *AuthMiddleware) RequireTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeUnauthorized(w, "missing authorization")
			return
		}

		tabID, err := m.tokens.Validate(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := WithTabID(r.Context(), tabID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithTabID returns ctx carrying tabID
func WithTabID(ctx context.Context, tabID string) context.Context {
	return context.WithValue(ctx, TabIDKey, tabID)
}

// GetTabID extracts the tab ID from context
func GetTabID(ctx context.Context) string {
	if v, ok := ctx.Value(TabIDKey).(string); ok {
		return v
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
