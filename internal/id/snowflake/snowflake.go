package snowflake

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Bit allocation, most-significant first: timestamp, group, member, sequence.
const (
	timestampBits = 41
	groupBits     = 5
	memberBits    = 5
	sequenceBits  = 12

	memberShift    = sequenceBits
	groupShift     = sequenceBits + memberBits
	timestampShift = sequenceBits + memberBits + groupBits

	// MaxGroupID is the largest valid group id (inclusive).
	MaxGroupID = (1 << groupBits) - 1
	// MaxMemberID is the largest valid member id (inclusive).
	MaxMemberID = (1 << memberBits) - 1

	sequenceMask = (1 << sequenceBits) - 1
	groupMask    = (1 << groupBits) - 1
	memberMask   = (1 << memberBits) - 1
	maxDelta     = (1 << timestampBits) - 1
)

// DefaultEpoch is the reference instant deltas are measured from.
var DefaultEpoch = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrClockRegressed reports that the sampled clock is behind the last
// issuance time. Issuance resumes once the clock catches back up.
var ErrClockRegressed = errors.New("system clock regressed")

// Config holds the fixed parameters of a Generator.
type Config struct {
	// Epoch must predate every instant the generator will ever sample.
	// Zero means DefaultEpoch.
	Epoch time.Time
	// GroupID and MemberID form the node identity. Each must be in
	// [0, 31] and the pair must be unique per running process.
	GroupID  int64
	MemberID int64
	// Now overrides the clock, mainly for tests. Zero means time.Now.
	Now func() time.Time
}

// Generator produces identifiers. Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	epochMs  int64
	groupID  int64
	memberID int64
	lastMs   int64
	seq      int64
	now      func() time.Time
}

// New validates the configuration and returns a Generator. Out-of-range
// node identity or an epoch in the future is a configuration error.
func New(cfg Config) (*Generator, error) {
	if cfg.GroupID < 0 || cfg.GroupID > MaxGroupID {
		return nil, fmt.Errorf("group id %d out of range [0, %d]", cfg.GroupID, MaxGroupID)
	}
	if cfg.MemberID < 0 || cfg.MemberID > MaxMemberID {
		return nil, fmt.Errorf("member id %d out of range [0, %d]", cfg.MemberID, MaxMemberID)
	}
	epoch := cfg.Epoch
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	if epoch.After(time.Now()) {
		return nil, fmt.Errorf("epoch %s is in the future", epoch.Format(time.RFC3339))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{
		epochMs:  epoch.UnixMilli(),
		groupID:  cfg.GroupID,
		memberID: cfg.MemberID,
		lastMs:   -1,
		now:      now,
	}, nil
}

// NewID returns the next identifier as a decimal string. The string form
// avoids precision loss in JSON consumers that treat numbers as float64.
func (g *Generator) NewID() (string, error) {
	id, err := g.next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// next issues the next raw identifier. The read-modify-write of
// (lastMs, seq) is a single critical section so no two calls can observe
// the same (timestamp, sequence) pair.
func (g *Generator) next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		return 0, fmt.Errorf("%w: sampled %dms behind last issuance", ErrClockRegressed, g.lastMs-ms)
	}
	if ms == g.lastMs {
		g.seq = (g.seq + 1) & sequenceMask
		if g.seq == 0 {
			// Sequence exhausted for this millisecond; spin until the
			// clock strictly advances.
			for ms <= g.lastMs {
				runtime.Gosched()
				ms = g.now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	delta := ms - g.epochMs
	if delta < 0 || delta > maxDelta {
		return 0, fmt.Errorf("timestamp delta %dms outside %d-bit range", delta, timestampBits)
	}
	id := delta<<timestampShift |
		g.groupID<<groupShift |
		g.memberID<<memberShift |
		g.seq
	return id, nil
}

// Parts are the decoded fields of an identifier.
type Parts struct {
	Delta    int64
	GroupID  int64
	MemberID int64
	Sequence int64
}

// Decompose splits a raw identifier back into its fields.
func Decompose(id int64) Parts {
	return Parts{
		Delta:    id >> timestampShift,
		GroupID:  (id >> groupShift) & groupMask,
		MemberID: (id >> memberShift) & memberMask,
		Sequence: id & sequenceMask,
	}
}

// DecomposeString decodes a decimal identifier string.
func DecomposeString(id string) (Parts, error) {
	raw, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("parse identifier: %w", err)
	}
	return Decompose(raw), nil
}
