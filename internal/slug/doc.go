// Package slug derives URL-safe tokens from free text and reconciles them
// against a uniqueness constraint held by an external store.
//
// A candidate is the transformed base text plus a short time-derived
// disambiguator. The Resolver asks a Checker whether the candidate is
// already taken within its scope and retries with a fresh disambiguator on
// collision, up to a fixed attempt budget. The Checker is a fast-path
// pre-check only; the store's own unique constraint remains the final gate
// at commit time, and a write losing that race surfaces as ErrTaken.
package slug
