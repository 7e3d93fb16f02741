package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
)

// RouterOptions carries the boundary configuration the router wires into its
// middleware chain.
type RouterOptions struct {
	Logger          infra.Logger
	JWTSecret       string
	AnonCookieName  string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	Country         geoip.CountryResolver
}

// NewRouter builds the chi router with the full middleware chain: request
// id, burst rate limit, optional auth, identity resolution, locale
// detection.
func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()

	var lookup middleware.CountryLookup
	if opts.Country != nil {
		lookup = opts.Country.CountryCode
	}

	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.RateLimit(opts.RateLimitPerMin))
	r.Use(middleware.I18N(opts.DefaultLocale, lookup))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/google", app.AuthGoogleVerify)
	})

	// The profile surface requires a signed-in caller; a missing or invalid
	// token is rejected at the middleware.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.Identity(opts.AnonCookieName))
		r.Get("/v1/me", app.Me)
	})

	// Generation and usage routes meter anonymous callers too, so auth is
	// optional and identity resolution runs for everyone.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthJWT(opts.JWTSecret))
		r.Use(middleware.Identity(opts.AnonCookieName))

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{id}", app.GenerationsGet)
		})
		r.Get("/v1/usage", app.UsageGet)
	})

	return r
}
