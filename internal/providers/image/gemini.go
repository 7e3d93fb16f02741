package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"server/internal/domain"
)

// GeminiGenerator calls the Gemini image API. Premium requests select the
// higher-quality model variant.
type GeminiGenerator struct {
	apiKey       string
	baseURL      string
	quickModel   string
	premiumModel string
	httpClient   *http.Client
}

// GeminiOptions configures the Gemini provider.
type GeminiOptions struct {
	APIKey       string
	BaseURL      string
	QuickModel   string
	PremiumModel string
	HTTPClient   *http.Client
}

// NewGeminiGenerator builds the provider with defaults applied.
func NewGeminiGenerator(opts GeminiOptions) *GeminiGenerator {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if opts.QuickModel == "" {
		opts.QuickModel = "gemini-2.5-flash-image"
	}
	if opts.PremiumModel == "" {
		opts.PremiumModel = "gemini-2.5-pro-image"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &GeminiGenerator{
		apiKey:       opts.APIKey,
		baseURL:      opts.BaseURL,
		quickModel:   opts.QuickModel,
		premiumModel: opts.PremiumModel,
		httpClient:   opts.HTTPClient,
	}
}

type geminiRequest struct {
	SourcePhoto string `json:"source_photo"`
	Watermark   bool   `json:"watermark"`
	RequestID   string `json:"request_id,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

type geminiResponse struct {
	Location string `json:"location"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs the HTTP call and normalizes the response.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	model := g.quickModel
	if req.Class == domain.OperationPremium {
		model = g.premiumModel
	}

	body, err := json.Marshal(geminiRequest{
		SourcePhoto: req.SourcePhoto,
		Watermark:   req.Watermark,
		RequestID:   req.RequestID,
		Locale:      req.Locale,
	})
	if err != nil {
		return Result{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateImage?key=%s", g.baseURL, model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("gemini: %w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("gemini: %w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}

	var out geminiResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return Result{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if out.Error != nil {
		return Result{}, fmt.Errorf("gemini: %w: %s %s", domain.ErrProviderFailure, out.Error.Code, out.Error.Message)
	}
	if out.Location == "" {
		return Result{}, fmt.Errorf("gemini: %w: empty result location", domain.ErrProviderFailure)
	}
	return Result{
		Location: out.Location,
		Format:   out.Format,
		Width:    out.Width,
		Height:   out.Height,
	}, nil
}
