package access

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// Authorization denial reasons. Deliberately coarse: a denial never reveals
// more than not-found vs not-authorized.
const (
	ReasonNotFound      = "NOT_FOUND"
	ReasonNotAuthorized = "NOT_AUTHORIZED"
)

const capabilityTokenBytes = 32 // 256 bits, hex-encoded to 64 chars

// AuthorizationResult is the outcome of an access check on a generation.
type AuthorizationResult struct {
	Authorized bool
	Reason     string
	Generation *domain.Generation
}

// Err maps the result onto the error taxonomy: nil when authorized,
// domain.ErrNotFound or domain.ErrNotAuthorized otherwise.
func (r AuthorizationResult) Err() error {
	if r.Authorized {
		return nil
	}
	if r.Reason == ReasonNotFound {
		return domain.ErrNotFound
	}
	return domain.ErrNotAuthorized
}

// Controller manages the lifecycle of generation records and authorizes
// later retrieval. Authenticated generations are owned by a user id;
// anonymous ones are guarded by an unguessable capability token instead.
type Controller struct {
	store domain.GenerationStore
	clock func() time.Time
}

// NewController builds a Controller over the given store.
func NewController(store domain.GenerationStore) *Controller {
	return &Controller{store: store, clock: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (c *Controller) SetClock(clock func() time.Time) {
	c.clock = clock
}

// Create records a new pending generation at the moment work begins. For
// anonymous identities it mints a capability token; the token is independent
// of the id and never derivable from it.
func (c *Controller) Create(ctx context.Context, id domain.Identity, sourcePhoto string, class domain.OperationClass, watermarked bool) (*domain.Generation, error) {
	g := &domain.Generation{
		ID:          uuid.NewString(),
		SourcePhoto: sourcePhoto,
		Class:       class,
		Status:      domain.GenerationStatusPending,
		Watermarked: watermarked,
		CreatedAt:   c.clock(),
	}
	if id.IsAuthenticated() {
		g.OwnerID = id.UserID
	} else {
		token, err := mintCapabilityToken()
		if err != nil {
			return nil, fmt.Errorf("access: mint capability token: %w", err)
		}
		g.CapabilityToken = token
	}
	if err := c.store.Insert(ctx, g); err != nil {
		return nil, fmt.Errorf("access: insert generation: %w", err)
	}
	return g, nil
}

// Complete transitions a pending generation to completed with its result
// location. Unknown ids report domain.ErrNotFound; terminal records report
// domain.ErrAlreadyTerminal. The transition is one-way.
func (c *Controller) Complete(ctx context.Context, generationID, resultLocation string) error {
	return c.transition(ctx, generationID, func(g *domain.Generation) {
		g.Status = domain.GenerationStatusCompleted
		g.ResultLocation = resultLocation
	})
}

// Fail transitions a pending generation to failed with an error code and
// message.
func (c *Controller) Fail(ctx context.Context, generationID, errorCode, errorMessage string) error {
	return c.transition(ctx, generationID, func(g *domain.Generation) {
		g.Status = domain.GenerationStatusFailed
		g.ErrorCode = errorCode
		g.ErrorMessage = errorMessage
	})
}

func (c *Controller) transition(ctx context.Context, generationID string, apply func(*domain.Generation)) error {
	g, err := c.store.Get(ctx, generationID)
	if err != nil {
		return err
	}
	if g.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	apply(g)
	g.CompletedAt = c.clock()
	return c.store.Transition(ctx, g)
}

// Authorize checks whether the requesting identity may retrieve the
// generation. Owned generations match on the exact owner id; a supplied
// token never helps there, because owned generations carry no token.
// Anonymous generations require the capability token, compared in constant
// time over the raw bytes; a length mismatch is an ordinary denial, never an
// error surfaced to the caller.
func (c *Controller) Authorize(ctx context.Context, generationID string, requester domain.Identity, suppliedToken string) AuthorizationResult {
	g, err := c.store.Get(ctx, generationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthorizationResult{Reason: ReasonNotFound}
		}
		// Store trouble is indistinguishable from absence to the caller.
		return AuthorizationResult{Reason: ReasonNotFound}
	}

	if g.OwnerID != "" {
		if requester.IsAuthenticated() && requester.UserID == g.OwnerID {
			return AuthorizationResult{Authorized: true, Generation: g}
		}
		return AuthorizationResult{Reason: ReasonNotAuthorized}
	}

	if suppliedToken == "" || !tokensEqual(suppliedToken, g.CapabilityToken) {
		return AuthorizationResult{Reason: ReasonNotAuthorized}
	}
	return AuthorizationResult{Authorized: true, Generation: g}
}

// tokensEqual compares capability tokens without leaking timing about where
// they diverge. Differing lengths are a firm rejection; ConstantTimeCompare
// only defends equal-length inputs.
func tokensEqual(supplied, stored string) bool {
	a := []byte(supplied)
	b := []byte(stored)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func mintCapabilityToken() (string, error) {
	buf := make([]byte, capabilityTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
