package slug

import (
	"errors"
	"strings"
)

// Resolution failures. ErrExhausted and ErrTaken both mean the caller
// should ask for different source text; they stay distinct because
// ErrTaken signals a concurrent writer won the commit-time race after the
// pre-check passed, which is not a resolver fault.
var (
	// ErrExhausted reports that every candidate in the attempt budget was
	// already taken.
	ErrExhausted = errors.New("slug candidates exhausted")
	// ErrAborted reports that resolution stopped early because the caller's
	// context was canceled or timed out.
	ErrAborted = errors.New("slug resolution aborted")
	// ErrTaken reports a store-level uniqueness violation at commit time.
	// It is produced by the persistence layer, not the Resolver.
	ErrTaken = errors.New("slug already taken")
)

// Scope is the namespace a slug must be unique within.
type Scope struct {
	// Kind discriminates the entity type, e.g. "site" or "category".
	Kind string
	// ParentID restricts uniqueness to one parent's children when set.
	ParentID string
}

// Global returns a scope covering all entities of one kind.
func Global(kind string) Scope {
	return Scope{Kind: kind}
}

// Within returns a scope covering the children of one parent entity.
func Within(kind, parentID string) Scope {
	return Scope{Kind: kind, ParentID: parentID}
}

// Make transforms free text into a slug base: lowercase, ASCII letters and
// digits only, runs of anything else collapsed to a single hyphen, no
// leading or trailing hyphens.
func Make(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSep := false
	for _, r := range strings.ToLower(text) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
