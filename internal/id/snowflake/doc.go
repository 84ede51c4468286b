// Package snowflake issues time-ordered 64-bit identifiers without any
// external coordination.
//
// # Format
//
// An identifier packs, most-significant bits first:
//
//	41 bits  milliseconds since the configured epoch
//	 5 bits  group id
//	 5 bits  member id
//	12 bits  per-millisecond sequence
//
// The 41-bit timestamp covers roughly 69 years from the epoch. Uniqueness
// across processes relies on each running instance owning a distinct
// (group, member) pair, provisioned via configuration.
//
// # Monotonicity
//
// A single Generator hands out strictly increasing values as long as the
// system clock does not move backwards. If the sequence wraps inside one
// millisecond the Generator spins until the clock advances. If the clock
// regresses the call fails with ErrClockRegressed instead of ever reusing
// a smaller timestamp.
package snowflake
