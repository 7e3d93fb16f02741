package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"server/internal/domain"
)

// DefaultAnonSessionCookie names the cookie carrying the durable anonymous
// session token.
const DefaultAnonSessionCookie = "anon_session"

type identityContextKey struct{}

// IdentityKey locates the resolved identity in a request context.
var IdentityKey = identityContextKey{}

// Identity resolves the caller identity exactly once per request: the user
// id left by the auth middleware when present, otherwise the anonymous
// session cookie plus the client network address. When no session cookie
// exists one is minted, so the durable token is available from the first
// request on.
func Identity(cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultAnonSessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := domain.Identity{
				UserID:         UserIDFromContext(r.Context()),
				NetworkAddress: clientIPForRateLimit(r),
			}

			if !id.IsAuthenticated() {
				if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
					id.SessionToken = c.Value
				} else {
					id.SessionToken = uuid.NewString()
					http.SetCookie(w, &http.Cookie{
						Name:     cookieName,
						Value:    id.SessionToken,
						Path:     "/",
						MaxAge:   365 * 24 * 3600,
						HttpOnly: true,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}

			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity resolved by the Identity
// middleware, or a zero identity if it never ran.
func IdentityFromContext(ctx context.Context) domain.Identity {
	if v, ok := ctx.Value(IdentityKey).(domain.Identity); ok {
		return v
	}
	return domain.Identity{}
}
