package domain

// Identity is the caller whose usage is metered. It is resolved once at the
// request boundary; the accounting core never re-derives it.
type Identity struct {
	// UserID is set for authenticated callers and empty otherwise.
	UserID string
	// SessionToken is the durable anonymous session identifier carried by a
	// cookie. It is the primary accounting key for anonymous callers.
	SessionToken string
	// NetworkAddress is the best-effort client IP, used as a fallback
	// accounting key when no session token is available.
	NetworkAddress string
}

// IsAuthenticated reports whether the identity belongs to a signed-in user.
func (id Identity) IsAuthenticated() bool {
	return id.UserID != ""
}

// AnonKey returns the accounting key for an anonymous identity, preferring
// the durable session token over the network address.
func (id Identity) AnonKey() string {
	if id.SessionToken != "" {
		return id.SessionToken
	}
	return id.NetworkAddress
}

// HasDurableToken reports whether anonymous counters for this identity can be
// persisted across process restarts. The network-address fallback never is.
func (id Identity) HasDurableToken() bool {
	return id.SessionToken != ""
}
