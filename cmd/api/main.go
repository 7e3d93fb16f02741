package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/access"
	"server/internal/adapter/repo"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/infra/google"
	"server/internal/providers/image"
	"server/internal/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	profiles := repo.NewProfileRepository(runner)
	anonCounters := repo.NewAnonCounterRepository(runner)
	generations := repo.NewGenerationRepository(runner)
	events := repo.NewUsageEventRepository(runner)

	catalog, err := usage.LoadCatalog(cfg.TiersPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load tier catalog")
	}

	anonStore := usage.NewAnonymousUsageStore(anonCounters, usage.AnonStoreOptions{
		CacheTTL:           cfg.AnonCacheTTL,
		FallbackTTL:        cfg.AnonFallbackTTL,
		MaxFallbackEntries: cfg.AnonMaxFallbackEntries,
		SweepInterval:      cfg.AnonSweepInterval,
	}, logger)
	go anonStore.Run(ctx)

	accountant := usage.NewAccountant(catalog, anonStore)
	guard := usage.NewGuard(accountant, profiles, anonCounters, events, cfg.AdminUserIDs, logger)
	controller := access.NewController(generations)

	var provider image.Generator
	switch cfg.ImageProvider {
	case "stub":
		provider = &image.StubGenerator{}
	default:
		provider = image.NewGeminiGenerator(image.GeminiOptions{
			APIKey:       cfg.GeminiAPIKey,
			BaseURL:      cfg.GeminiBaseURL,
			QuickModel:   cfg.GeminiQuickModel,
			PremiumModel: cfg.GeminiPremiumModel,
		})
	}

	var country geoip.CountryResolver
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip resolver unavailable, locale falls back to headers")
	} else if resolver != nil {
		defer resolver.Close()
		country = resolver
	}

	app := &handlers.App{
		Logger:         logger,
		Guard:          guard,
		Access:         controller,
		Provider:       provider,
		Profiles:       profiles,
		GoogleVerifier: google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID),
		JWTSecret:      cfg.JWTSecret,
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		AnonCookieName:  cfg.AnonCookieName,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		Country:         country,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
