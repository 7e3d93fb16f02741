package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/access"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/providers/image"
	"server/internal/usage"
)

// GoogleVerifier validates a Google ID token and returns its claims.
type GoogleVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (map[string]any, error)
}

// App is the handler container. All dependencies are injected so handlers
// stay testable with stubs.
type App struct {
	Logger         infra.Logger
	Guard          *usage.Guard
	Access         *access.Controller
	Provider       image.Generator
	Profiles       domain.ProfileStore
	GoogleVerifier GoogleVerifier
	JWTSecret      string
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func (a *App) identity(r *http.Request) domain.Identity {
	return middleware.IdentityFromContext(r.Context())
}
