package slug

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// maxAttempts bounds the optimistic retry loop. Collisions inside the
// budget are absorbed silently; exhausting it surfaces ErrExhausted.
const maxAttempts = 5

// Checker answers whether a slug is already taken within a scope. It must
// reflect committed store state; transient staleness is tolerated because
// the store's unique constraint is the real gate.
type Checker interface {
	// ExistsInScope reports whether a record other than excludeID already
	// holds slug within scope. excludeID may be empty.
	ExistsInScope(ctx context.Context, scope Scope, slug string, excludeID string) (bool, error)
}

// Config holds the Resolver collaborators.
type Config struct {
	Checker Checker
	// Now overrides the disambiguator clock, mainly for tests.
	// Zero means time.Now.
	Now func() time.Time
	// OnResolved, when set, receives the number of candidates checked
	// after each resolution that consulted the Checker at least once.
	OnResolved func(attempts int)
}

// Resolver turns free text into a slug free of collisions at call time.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	checker    Checker
	now        func() time.Time
	onResolved func(attempts int)
}

// NewResolver builds a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Checker == nil {
		return nil, fmt.Errorf("checker is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{checker: cfg.Checker, now: now, onResolved: cfg.OnResolved}, nil
}

// Resolve derives a candidate from text and retries with fresh
// disambiguators until the checker reports it free, the attempt budget
// runs out (ErrExhausted), or ctx ends (ErrAborted). When excludeID is
// set, a matching record with that id does not count as a collision, so a
// rename back to the same text succeeds.
func (r *Resolver) Resolve(ctx context.Context, text string, scope Scope, excludeID string) (string, error) {
	base := Make(text)
	if base == "" {
		// Punctuation-only input still needs a printable base.
		base = Make(scope.Kind)
	}
	if base == "" {
		return "", fmt.Errorf("cannot derive slug from empty text and scope")
	}

	checked := 0
	defer func() {
		if r.onResolved != nil && checked > 0 {
			r.onResolved(checked)
		}
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrAborted, err)
		}
		candidate := base + "-" + r.disambiguator()
		exists, err := r.checker.ExistsInScope(ctx, scope, candidate, excludeID)
		checked++
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
			}
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrExhausted, base, maxAttempts)
}

// disambiguator is the current instant in base-36. Coarse wall-clock time
// keeps resolver instances stateless; same-millisecond duplicates fall
// back on the retry loop.
func (r *Resolver) disambiguator() string {
	return strconv.FormatInt(r.now().UnixMilli(), 36)
}
