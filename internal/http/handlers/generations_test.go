package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/access"
	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/providers/image"
	"server/internal/usage"
)

type fakeProfileStore struct {
	profiles map[string]*domain.Profile
}

func (s *fakeProfileStore) Get(_ context.Context, userID string) (*domain.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProfileStore) UpsertByGoogleSub(_ context.Context, sub string, p *domain.Profile) (*domain.Profile, error) {
	if existing, ok := s.profiles[sub]; ok {
		cp := *existing
		return &cp, nil
	}
	p.UserID = sub
	s.profiles[sub] = p
	cp := *p
	return &cp, nil
}

func (s *fakeProfileStore) UpdateUsage(_ context.Context, userID string, f domain.UsageFields) error {
	if p, ok := s.profiles[userID]; ok {
		p.QuickUsed = f.QuickUsed
		p.PremiumUsed = f.PremiumUsed
		p.MonthlyUsed = f.MonthlyUsed
		p.MonthlyResetAt = f.MonthlyResetAt
		p.CreditBalance = f.CreditBalance
	}
	return nil
}

func (s *fakeProfileStore) SetPlan(_ context.Context, _, _, _ string, _ int) error {
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(_ context.Context, _ image.Request) (image.Result, error) {
	return image.Result{}, errors.New("model overloaded")
}

func newTestApp(profiles *fakeProfileStore, provider image.Generator) *App {
	if profiles == nil {
		profiles = &fakeProfileStore{profiles: map[string]*domain.Profile{}}
	}
	if provider == nil {
		provider = &image.StubGenerator{}
	}
	anon := usage.NewAnonymousUsageStore(nil, usage.AnonStoreOptions{}, zerolog.Nop())
	acct := usage.NewAccountant(usage.DefaultCatalog(), anon)
	guard := usage.NewGuard(acct, profiles, nil, nil, nil, zerolog.Nop())
	return &App{
		Logger:   zerolog.Nop(),
		Guard:    guard,
		Access:   access.NewController(access.NewMemoryStore()),
		Provider: provider,
		Profiles: profiles,
	}
}

func withIdentity(r *http.Request, id domain.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.IdentityKey, id))
}

func postGeneration(t *testing.T, app *App, id domain.Identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewBufferString(body))
	r = withIdentity(r, id)
	w := httptest.NewRecorder()
	app.GenerationsCreate(w, r)
	return w
}

func getGeneration(t *testing.T, app *App, id domain.Identity, genID, token string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/v1/generations/" + genID
	if token != "" {
		target += "?token=" + token
	}
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r = withIdentity(r, id)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", genID)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	app.GenerationsGet(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return m
}

func TestGenerationsCreateAnonymousFlow(t *testing.T) {
	app := newTestApp(nil, nil)
	id := domain.Identity{SessionToken: "sess-1", NetworkAddress: "203.0.113.1"}

	w := postGeneration(t, app, id, `{"source_photo":"photo.jpg"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "completed" {
		t.Fatalf("status field = %v", body["status"])
	}
	token, _ := body["capability_token"].(string)
	if len(token) != 64 {
		t.Fatalf("capability_token length = %d, want 64", len(token))
	}
	if body["remaining"] != float64(2) {
		t.Fatalf("remaining = %v, want 2", body["remaining"])
	}
	if body["watermarked"] != true {
		t.Fatal("anonymous result must be watermarked")
	}
	if body["result_location"] == "" {
		t.Fatal("missing result_location")
	}

	genID, _ := body["id"].(string)

	// Retrieval with the minted token succeeds for anyone.
	if w := getGeneration(t, app, domain.Identity{SessionToken: "other"}, genID, token); w.Code != http.StatusOK {
		t.Fatalf("get with token = %d, body %s", w.Code, w.Body.String())
	}
	// Without a token the anonymous artifact is unreachable.
	if w := getGeneration(t, app, id, genID, ""); w.Code != http.StatusForbidden {
		t.Fatalf("get without token = %d, want 403", w.Code)
	}
}

func TestGenerationsCreateValidation(t *testing.T) {
	app := newTestApp(nil, nil)
	id := domain.Identity{SessionToken: "sess-1"}

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing source photo", body: `{"class":"quick"}`},
		{name: "unknown class", body: `{"source_photo":"p.jpg","class":"ultra"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := postGeneration(t, app, id, tc.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGenerationsCreateDeniedAtLimit(t *testing.T) {
	app := newTestApp(nil, nil)
	id := domain.Identity{SessionToken: "sess-1"}

	for i := 0; i < 3; i++ {
		if w := postGeneration(t, app, id, `{"source_photo":"p.jpg"}`); w.Code != http.StatusCreated {
			t.Fatalf("generation %d: status = %d", i, w.Code)
		}
	}
	w := postGeneration(t, app, id, `{"source_photo":"p.jpg"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	body := decodeBody(t, w)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "LIMIT_REACHED" {
		t.Fatalf("error.code = %v", errObj["code"])
	}
	if errObj["message"] == "" {
		t.Fatal("denial must carry an upgrade message")
	}

	// The premium class stays available.
	if w := postGeneration(t, app, id, `{"source_photo":"p.jpg","class":"premium"}`); w.Code != http.StatusCreated {
		t.Fatalf("premium after quick exhaustion = %d", w.Code)
	}
}

func TestGenerationsCreateProviderFailure(t *testing.T) {
	app := newTestApp(nil, failingGenerator{})
	id := domain.Identity{SessionToken: "sess-1"}

	w := postGeneration(t, app, id, `{"source_photo":"p.jpg"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	// The failure consumed no quota: three quick generations remain.
	app.Provider = &image.StubGenerator{}
	for i := 0; i < 3; i++ {
		if w := postGeneration(t, app, id, `{"source_photo":"p.jpg"}`); w.Code != http.StatusCreated {
			t.Fatalf("generation %d after provider failure: status = %d", i, w.Code)
		}
	}
}

func TestGenerationsCreateAuthenticatedOwnership(t *testing.T) {
	profiles := &fakeProfileStore{profiles: map[string]*domain.Profile{
		"u1": {UserID: "u1"},
	}}
	app := newTestApp(profiles, nil)
	owner := domain.Identity{UserID: "u1"}

	w := postGeneration(t, app, owner, `{"source_photo":"p.jpg"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if _, ok := body["capability_token"]; ok {
		t.Fatal("authenticated generation must not expose a capability token")
	}
	genID, _ := body["id"].(string)

	if w := getGeneration(t, app, owner, genID, ""); w.Code != http.StatusOK {
		t.Fatalf("owner get = %d", w.Code)
	}
	if w := getGeneration(t, app, domain.Identity{UserID: "u2"}, genID, ""); w.Code != http.StatusForbidden {
		t.Fatalf("stranger get = %d, want 403", w.Code)
	}
	if p := profiles.profiles["u1"]; p.QuickUsed != 1 {
		t.Fatalf("QuickUsed = %d, want 1 after commit", p.QuickUsed)
	}
}

func TestGenerationsCreateAdminBypass(t *testing.T) {
	profiles := &fakeProfileStore{profiles: map[string]*domain.Profile{
		"admin-1": {UserID: "admin-1"},
	}}
	app := newTestApp(profiles, nil)
	anon := usage.NewAnonymousUsageStore(nil, usage.AnonStoreOptions{}, zerolog.Nop())
	acct := usage.NewAccountant(usage.DefaultCatalog(), anon)
	app.Guard = usage.NewGuard(acct, profiles, nil, nil, []string{"admin-1"}, zerolog.Nop())

	w := postGeneration(t, app, domain.Identity{UserID: "admin-1"}, `{"source_photo":"p.jpg","class":"premium"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["watermarked"] != false {
		t.Fatalf("watermarked = %v, want false for admin output", body["watermarked"])
	}
	if body["remaining"] != float64(-1) {
		t.Fatalf("remaining = %v, want -1 for bypassed usage", body["remaining"])
	}
	if p := profiles.profiles["admin-1"]; p.PremiumUsed != 0 {
		t.Fatalf("PremiumUsed = %d, bypass must not consume quota", p.PremiumUsed)
	}
}

func TestGenerationsGetUnknownID(t *testing.T) {
	app := newTestApp(nil, nil)
	w := getGeneration(t, app, domain.Identity{UserID: "u1"}, "b2f7a190-0000-4000-8000-000000000000", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUsageGetReportsBothClasses(t *testing.T) {
	profiles := &fakeProfileStore{profiles: map[string]*domain.Profile{
		"u1": {UserID: "u1", QuickUsed: 2, CreditBalance: 4},
	}}
	app := newTestApp(profiles, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	r = withIdentity(r, domain.Identity{UserID: "u1"})
	w := httptest.NewRecorder()
	app.UsageGet(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp usageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tier != usage.TierFree {
		t.Fatalf("tier = %q", resp.Tier)
	}
	if resp.Quick.Used != 2 || resp.Quick.Limit != 5 || resp.Quick.Remaining != 3 {
		t.Fatalf("quick = %+v", resp.Quick)
	}
	if resp.Premium.Used != 0 || resp.Premium.Limit != 1 {
		t.Fatalf("premium = %+v", resp.Premium)
	}
	if resp.CreditBalance != 4 {
		t.Fatalf("credit_balance = %d", resp.CreditBalance)
	}
}
