package client

import (
	"testing"
	"time"
)

func TestTimeBudgetUsesInjectedClock(t *testing.T) {
	now := time.Unix(100, 0)
	b := &TimeBudget{Limit: 10 * time.Millisecond, Now: func() time.Time { return now }}
	b.Begin()
	if b.Exhausted() {
		t.Fatalf("fresh budget exhausted")
	}
	now = now.Add(10 * time.Millisecond)
	if !b.Exhausted() {
		t.Fatalf("expected exhausted budget")
	}
	b.Begin()
	if b.Exhausted() {
		t.Fatalf("Begin must restart the budget")
	}
}

func TestCountBudget(t *testing.T) {
	b := &CountBudget{N: 2}
	b.Begin()
	if b.Exhausted() {
		t.Fatalf("exhausted after one entry")
	}
	if !b.Exhausted() {
		t.Fatalf("expected exhausted after two entries")
	}
	b.Begin()
	if b.Exhausted() {
		t.Fatalf("Begin must reset the count")
	}

	unlimited := &CountBudget{}
	unlimited.Begin()
	for i := 0; i < 100; i++ {
		if unlimited.Exhausted() {
			t.Fatalf("zero budget must be unlimited")
		}
	}
}

func TestStateNames(t *testing.T) {
	for s := StateIdle; s <= StateReinitializingVisuals; s++ {
		if s.String() == "" || s.String()[0] == 's' {
			t.Fatalf("missing name for state %d", int(s))
		}
	}
	if State(99).String() != "state(99)" {
		t.Fatalf("unexpected fallback name %q", State(99).String())
	}
}
