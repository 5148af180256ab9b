package resilience

import "time"

// Default backoff parameters for reconnect schedules.
const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Backoff produces an exponential delay schedule for reconnection attempts:
// base, base*2, base*4, ... capped at max. Not safe for concurrent use; the
// session drives it from its single supervision goroutine.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

// NewBackoff creates a schedule with the given base and cap. Non-positive
// values fall back to 1s base and 30s cap.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay for the upcoming attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.base << b.attempt
	if d > b.max || d <= 0 { // shift overflow guards the cap too
		d = b.max
	}
	b.attempt++
	return d
}

// Attempt returns how many delays have been handed out since the last reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset restarts the schedule after a successful connection.
func (b *Backoff) Reset() { b.attempt = 0 }
