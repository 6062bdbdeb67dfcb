package transport

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the reconnect delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return max(cfg.InitialDelay, 0)
	}
	mult := math.Max(cfg.Multiplier, 1.0)
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Reconnector counts consecutive failed connects for one target.
type Reconnector struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewReconnector(cfg BackoffConfig, rng *rand.Rand) *Reconnector {
	return &Reconnector{cfg: cfg, rng: rng}
}

// Failed records a failed attempt and returns how long to wait before the next.
func (r *Reconnector) Failed() time.Duration {
	r.attempt++
	return NextBackoffDelay(r.cfg, r.attempt, r.rng)
}

// Succeeded resets the attempt count.
func (r *Reconnector) Succeeded() {
	r.attempt = 0
}

// Attempts returns the number of consecutive failures.
func (r *Reconnector) Attempts() int {
	return r.attempt
}
