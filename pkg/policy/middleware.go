package policy

import (
	"net/http"

	"github.com/stackgate/admind/pkg/httputil"
	"github.com/stackgate/admind/pkg/observability"
)

// RequirePermission guards a route with an enforcement check against the
// given object and action. The subject comes from the gateway identity
// headers lifted into the context by httputil.IdentityMiddleware.
func RequirePermission(store Store, logger *observability.Logger, object, action string) httputil.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := observability.GetUserID(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "missing user identity")
				return
			}

			allowed, err := store.Enforce(UserSubject(userID), object, action)
			if err != nil {
				logger.WithError(err).WithField("user_id", userID).Error("permission check failed")
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "permission denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
