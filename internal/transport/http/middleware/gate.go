package middleware

import (
	"context"
	"net/http"

	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/transport/http/api"
	"zonafiscal/internal/transport/http/shared"
)

// PermissionResolver yields the effective access set for a user.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID string) auth.Access
}

// RequireAuth rejects requests that carry no valid identity. Auth runs
// earlier in the chain; here we only distinguish a missing token from an
// invalid one, for the response message and the security event.
func RequireAuth(sec *security.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetUser(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			eventType := security.EventTokenInvalid
			message := api.MsgTokenInvalid
			if _, present := bearerToken(r); !present {
				eventType = security.EventTokenMissing
				message = api.MsgTokenMissing
			}
			sec.Record(r.Context(), security.Event{
				EventType: eventType,
				Detail:    r.Method + " " + r.URL.Path,
				IP:        shared.ClientIP(r),
				RequestID: GetRequestID(r.Context()),
			})
			api.Fail(w, http.StatusUnauthorized, message)
		})
	}
}

// RequirePermission gates an endpoint on one permission. The check happens
// before the handler touches any data, so a denied request has no side
// effects beyond the security event.
func RequirePermission(permission string, resolver PermissionResolver, sec *security.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				eventType := security.EventTokenInvalid
				message := api.MsgTokenInvalid
				if _, present := bearerToken(r); !present {
					eventType = security.EventTokenMissing
					message = api.MsgTokenMissing
				}
				sec.Record(r.Context(), security.Event{
					EventType: eventType,
					Detail:    r.Method + " " + r.URL.Path,
					IP:        shared.ClientIP(r),
					RequestID: GetRequestID(r.Context()),
				})
				api.Fail(w, http.StatusUnauthorized, message)
				return
			}

			access := resolver.Resolve(r.Context(), user.UserID)
			if !access.Has(permission) {
				sec.Record(r.Context(), security.Event{
					UserID:    user.UserID,
					EventType: security.EventPermissionDenied,
					Detail:    permission,
					IP:        shared.ClientIP(r),
					RequestID: GetRequestID(r.Context()),
				})
				api.Fail(w, http.StatusForbidden, api.MsgForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CronSecret guards scheduler endpoints with a shared-secret header.
func CronSecret(secret string, sec *security.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" || r.Header.Get("X-Cron-Secret") != secret {
				sec.Record(r.Context(), security.Event{
					EventType: security.EventCronSecretMismatch,
					Detail:    r.URL.Path,
					IP:        shared.ClientIP(r),
					RequestID: GetRequestID(r.Context()),
				})
				api.Fail(w, http.StatusUnauthorized, api.MsgTokenInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
