package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/providers/image"
	"server/internal/usage"
)

type generateRequest struct {
	SourcePhoto string `json:"source_photo"`
	Class       string `json:"class"`
}

type generationDTO struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Class           string `json:"class"`
	ResultLocation  string `json:"result_location,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Watermarked     bool   `json:"watermarked"`
	CapabilityToken string `json:"capability_token,omitempty"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

type generateResponse struct {
	generationDTO
	Remaining int `json:"remaining"`
}

// GenerationsCreate runs the full guarded flow: admit, record a pending
// generation, call the provider, then commit usage only on success.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	locale := middleware.LocaleFromContext(r.Context())
	requestID := middleware.RequestIDFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.SourcePhoto == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "source_photo required")
		return
	}
	class := domain.OperationClass(req.Class)
	if req.Class == "" {
		class = domain.OperationQuick
	}
	if !class.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "class must be quick or premium")
		return
	}

	adm, denial := a.Guard.Admit(r.Context(), id, class, locale)
	if denial != nil {
		a.json(w, http.StatusTooManyRequests, map[string]*usage.Denial{"error": denial})
		return
	}

	// Bypassed admissions carry no catalog tier; admins get watermark-free
	// output.
	watermark := false
	if !adm.Bypass {
		tier := a.Guard.Accountant().Catalog().TierFor(adm.Decision.Tier)
		watermark = !tier.WatermarkFree
	}
	gen, err := a.Access.Create(r.Context(), id, req.SourcePhoto, class, watermark)
	if err != nil {
		a.Logger.Error().Err(err).Msg("create generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record generation")
		return
	}

	result, err := a.Provider.Generate(r.Context(), image.Request{
		SourcePhoto: req.SourcePhoto,
		Class:       class,
		RequestID:   requestID,
		Locale:      locale,
		Watermark:   watermark,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("generation_id", gen.ID).Msg("provider failed")
		if ferr := a.Access.Fail(r.Context(), gen.ID, "provider_failure", err.Error()); ferr != nil {
			a.Logger.Error().Err(ferr).Str("generation_id", gen.ID).Msg("fail transition failed")
		}
		a.error(w, http.StatusBadGateway, "provider_failure", "image generation failed")
		return
	}

	if err := a.Access.Complete(r.Context(), gen.ID, result.Location); err != nil {
		a.Logger.Error().Err(err).Str("generation_id", gen.ID).Msg("complete transition failed")
	}

	remaining, err := a.Guard.Commit(r.Context(), adm, gen.ID, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			// The authoritative re-check caught a stale balance read. The
			// artifact exists but the caller is told the purchase failed.
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "credit balance too low")
			return
		}
		a.Logger.Error().Err(err).Msg("usage commit failed")
		remaining = adm.Decision.Remaining
	}

	a.json(w, http.StatusCreated, generateResponse{
		generationDTO: generationDTO{
			ID:              gen.ID,
			Status:          string(domain.GenerationStatusCompleted),
			Class:           string(class),
			ResultLocation:  result.Location,
			Watermarked:     gen.Watermarked,
			CapabilityToken: gen.CapabilityToken,
			CreatedAt:       gen.CreatedAt.UTC().Format(time.RFC3339),
		},
		Remaining: remaining,
	})
}

// GenerationsGet authorizes retrieval of a generation: owners by identity,
// anonymous creators by capability token.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	genID := chi.URLParam(r, "id")
	if genID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("X-Capability-Token")
	}

	res := a.Access.Authorize(r.Context(), genID, a.identity(r), token)
	if err := res.Err(); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
		} else {
			a.error(w, http.StatusForbidden, "not_authorized", "access denied")
		}
		return
	}

	g := res.Generation
	dto := generationDTO{
		ID:             g.ID,
		Status:         string(g.Status),
		Class:          string(g.Class),
		ResultLocation: g.ResultLocation,
		ErrorCode:      g.ErrorCode,
		ErrorMessage:   g.ErrorMessage,
		Watermarked:    g.Watermarked,
		CreatedAt:      g.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !g.CompletedAt.IsZero() {
		dto.CompletedAt = g.CompletedAt.UTC().Format(time.RFC3339)
	}
	a.json(w, http.StatusOK, dto)
}
