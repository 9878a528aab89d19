package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func policyVerdict(t *testing.T, claims *Claims) int {
	t.Helper()
	handler := Require(AdminOnly)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), Context, claims))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAdminOnly(t *testing.T) {
	require.Equal(t, http.StatusForbidden, policyVerdict(t, nil), "no claims in context")
	require.Equal(t, http.StatusForbidden, policyVerdict(t, &Claims{ID: "cust_1"}), "non-admin claims")
	require.Equal(t, http.StatusNoContent, policyVerdict(t, &Claims{ID: "cust_1", Admin: true}))
}
