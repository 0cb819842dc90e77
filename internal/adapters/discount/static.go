// Package discount provides a static table-driven discount service.
package discount

import (
	"sync"
	"time"
)

// Entry describes a single discount code: a percentage off in basis points,
// an optional expiry and an optional redemption cap.
type Entry struct {
	BasisPoints uint64    // e.g. 1500 = 15% off
	ExpiresAt   time.Time // zero means never expires
	MaxUses     uint64    // zero means unlimited
}

// Static implements the engine's discount collaborator from a fixed code
// table. Redemption counts are tracked in memory.
type Static struct {
	mu    sync.Mutex
	codes map[string]Entry
	uses  map[string]uint64
	nowFn func() time.Time
}

// NewStatic builds a discount service over the given code table.
func NewStatic(codes map[string]Entry) *Static {
	table := make(map[string]Entry, len(codes))
	for code, e := range codes {
		table[code] = e
	}
	return &Static{codes: table, uses: make(map[string]uint64), nowFn: time.Now}
}

// SetClock overrides the time source for tests.
func (s *Static) SetClock(fn func() time.Time) {
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

func (s *Static) validLocked(code string) (Entry, bool) {
	e, ok := s.codes[code]
	if !ok {
		return Entry{}, false
	}
	if !e.ExpiresAt.IsZero() && !s.nowFn().Before(e.ExpiresAt) {
		return Entry{}, false
	}
	if e.MaxUses > 0 && s.uses[code] >= e.MaxUses {
		return Entry{}, false
	}
	return e, true
}

// IsValid reports whether the code exists, has not expired and has uses left.
func (s *Static) IsValid(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.validLocked(code)
	return ok
}

// PriceAfterDiscount applies the code to the base price and counts the
// redemption. Invalid codes leave the price unchanged.
func (s *Static) PriceAfterDiscount(code string, base uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.validLocked(code)
	if !ok {
		return base
	}
	s.uses[code]++
	off := base * e.BasisPoints / 10000
	if off >= base {
		return 0
	}
	return base - off
}
