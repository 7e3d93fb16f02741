package domain

import "time"

// GenerationStatus enumerates generation lifecycle states.
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
)

// OperationClass distinguishes the two independently metered kinds of
// generation.
type OperationClass string

const (
	OperationQuick   OperationClass = "quick"
	OperationPremium OperationClass = "premium"
)

// Valid reports whether the class is one of the known values.
func (c OperationClass) Valid() bool {
	return c == OperationQuick || c == OperationPremium
}

// Generation is a produced artifact record. Exactly one of OwnerID and
// CapabilityToken is set: authenticated generations carry the owner id,
// anonymous ones carry an unguessable bearer token instead.
type Generation struct {
	ID              string
	OwnerID         string
	CapabilityToken string
	SourcePhoto     string
	Class           OperationClass
	Status          GenerationStatus
	ResultLocation  string
	ErrorCode       string
	ErrorMessage    string
	Watermarked     bool
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// Terminal reports whether the generation has reached a final state.
func (g *Generation) Terminal() bool {
	return g.Status == GenerationStatusCompleted || g.Status == GenerationStatusFailed
}
