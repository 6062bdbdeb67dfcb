package client

import "time"

// Budget bounds how much decode work one Step spends on an initialization
// reply. Begin is called each time an initializing state resumes decoding;
// Exhausted is checked after each entry, so every pass instantiates at least
// one entry.
type Budget interface {
	Begin()
	Exhausted() bool
}

// DefaultInitBudget keeps initialization under one 60 Hz frame.
const DefaultInitBudget = 10 * time.Millisecond

// TimeBudget is a wall-clock budget over an injectable clock.
type TimeBudget struct {
	Limit time.Duration
	Now   func() time.Time

	start time.Time
}

func NewTimeBudget(limit time.Duration) *TimeBudget {
	return &TimeBudget{Limit: limit, Now: time.Now}
}

func (b *TimeBudget) Begin() {
	b.start = b.now()
}

func (b *TimeBudget) Exhausted() bool {
	if b.Limit <= 0 {
		return false
	}
	return b.now().Sub(b.start) >= b.Limit
}

func (b *TimeBudget) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// CountBudget allows N entries per tick. N <= 0 means unlimited.
type CountBudget struct {
	N int

	used int
}

func (b *CountBudget) Begin() {
	b.used = 0
}

func (b *CountBudget) Exhausted() bool {
	if b.N <= 0 {
		return false
	}
	b.used++
	return b.used >= b.N
}
