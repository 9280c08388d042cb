package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingsurvey/internal/service"
)

func TestRequireTab(t *testing.T) {
	tokens := service.NewTabTokenService("secret", time.Hour)
	token, err := tokens.Issue("tab-9")
	require.NoError(t, err)

	var seen string
	h := NewAuthMiddleware(tokens).RequireTab(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTabID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		tabID  string
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusNoContent, tabID: "tab-9"},
		{name: "lowercase scheme", header: "bearer " + token, status: http.StatusNoContent, tabID: "tab-9"},
		{name: "query param", query: "?token=" + token, status: http.StatusNoContent, tabID: "tab-9"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/session"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.tabID, seen)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}
