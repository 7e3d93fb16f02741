package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"server/internal/domain"
	"server/internal/middleware"
)

type googleVerifyRequest struct {
	IDToken string `json:"id_token"`
}

type googleVerifyResponse struct {
	Token string     `json:"token"`
	User  profileDTO `json:"user"`
}

type profileDTO struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Locale             string `json:"locale"`
	Tier               string `json:"tier"`
	SubscriptionStatus string `json:"subscription_status"`
	CreditBalance      int    `json:"credit_balance"`
}

// AuthGoogleVerify exchanges a verified Google ID token for a service JWT,
// upserting the profile row on the way.
func (a *App) AuthGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.IDToken == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id_token required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	claims, err := a.GoogleVerifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Error().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	locale, _ := claims["locale"].(string)
	if locale == "" {
		// The Google token may omit locale; fall back to the country the
		// i18n middleware resolved for this request.
		if middleware.CountryFromContext(r.Context()) == "ID" {
			locale = "id"
		} else {
			locale = "en"
		}
	}

	profile, err := a.Profiles.UpsertByGoogleSub(r.Context(), sub, &domain.Profile{
		Email:  email,
		Locale: locale,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("upsert profile failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist profile")
		return
	}

	token, err := middleware.SignJWT(a.JWTSecret, middleware.TokenClaims{
		Sub:      profile.UserID,
		Plan:     profile.Tier,
		Locale:   locale,
		Exp:      time.Now().Add(24 * time.Hour).Unix(),
		Issuer:   "glowshot",
		Audience: "glowshot-clients",
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusOK, googleVerifyResponse{
		Token: token,
		User: profileDTO{
			ID:                 profile.UserID,
			Email:              profile.Email,
			Locale:             profile.Locale,
			Tier:               profile.Tier,
			SubscriptionStatus: profile.SubscriptionStatus,
			CreditBalance:      profile.CreditBalance,
		},
	})
}

// Me returns the authenticated caller's stored profile.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	if !id.IsAuthenticated() {
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	profile, err := a.Profiles.Get(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", id.UserID).Msg("profile fetch failed")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "profile store unavailable")
		return
	}

	a.json(w, http.StatusOK, profileDTO{
		ID:                 profile.UserID,
		Email:              profile.Email,
		Locale:             profile.Locale,
		Tier:               profile.Tier,
		SubscriptionStatus: profile.SubscriptionStatus,
		CreditBalance:      profile.CreditBalance,
	})
}
