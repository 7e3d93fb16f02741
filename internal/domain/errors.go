package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrLimitReached        = errors.New("limit reached")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrAlreadyTerminal     = errors.New("generation already terminal")
	ErrProviderFailure     = errors.New("provider failure")
)
