package image

import (
	"context"

	"server/internal/domain"
)

// Request describes a normalized generation request passed to a provider.
type Request struct {
	SourcePhoto string
	Class       domain.OperationClass
	RequestID   string
	Locale      string
	Watermark   bool
}

// Result is the produced artifact reference.
type Result struct {
	Location string
	Format   string
	Width    int
	Height   int
}

// Generator is the contract implemented by all image providers. The
// accounting core treats it as a black box: only the success signal matters
// for usage commits.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
