package auth

import (
	"net/http"

	resp "github.com/zllovesuki/prepme/response"
)

// Policy decides if the authenticated Claims may reach a protected surface.
// The managers underneath never inspect roles; authorization happens here,
// before any of them is invoked.
type Policy func(claims *Claims) bool

// AdminOnly permits claims carrying the admin flag
func AdminOnly(claims *Claims) bool {
	return claims != nil && claims.Admin
}

// Require returns a http middleware enforcing the given Policy on routes
// already behind Middleware()
func Require(policy Policy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(Context).(*Claims)
			if !ok || !policy(claims) {
				resp.WriteError(w, r, resp.ErrForbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
