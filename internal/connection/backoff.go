package connection

import "time"

// backoff is the stepped reconnect delay: initial, initial+step, ... up to max.
// Not safe for concurrent use; the Manager guards it with its own lock.
type backoff struct {
	initial time.Duration
	step    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, step, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{
		initial: initial,
		step:    step,
		max:     max,
		current: initial,
	}
}

// Current returns the delay to use for the next retry.
func (b *backoff) Current() time.Duration {
	return b.current
}

// Advance steps the delay, clamped to max.
func (b *backoff) Advance() {
	b.current += b.step
	if b.current > b.max {
		b.current = b.max
	}
}

// Reset restores the initial delay.
func (b *backoff) Reset() {
	b.current = b.initial
}
