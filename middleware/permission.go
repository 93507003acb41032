package middleware

import (
	"net/http"

	authcore "github.com/tauinbox/client-server-starter-app-sub001"
)

// RequirePermission rejects requests whose authenticated caller lacks a grant
// for action on resource. It must be mounted inside [Authenticate]; requests
// without a validation result in the context are rejected with 401.
func RequirePermission(engine *authcore.Engine, action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			allowed, err := engine.Can(r.Context(), res.UserID, action, resource, nil)
			if err != nil || !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
