package image

import (
	"context"
	"fmt"
)

// StubGenerator returns deterministic synthetic results. It keeps the API
// fully operational in local and CI environments where no provider key is
// configured.
type StubGenerator struct {
	BaseURL string
}

// Generate fabricates a stable location from the request id.
func (s *StubGenerator) Generate(_ context.Context, req Request) (Result, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://stub.local/results"
	}
	return Result{
		Location: fmt.Sprintf("%s/%s.png", base, req.RequestID),
		Format:   "png",
		Width:    1024,
		Height:   1024,
	}, nil
}
