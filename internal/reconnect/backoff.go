// Package reconnect implements the exponential backoff used by the MQTT
// lifecycle controller to space out reconnect attempts, and the reset to
// the base delay (MarkStable) that applies once a connection has proven
// itself stable; the connection-age tracking that decides when to reset
// lives in the caller. It is a specialization of the generic
// exponential-backoff-with-reset idiom used elsewhere in the fleet
// codebase, narrowed to the doubling-and-cap rule the reconnect loop needs.
package reconnect

import "time"

// Backoff tracks the delay to use for the next scheduled reconnect attempt.
// It is not safe for concurrent use; callers serialize access (the
// lifecycle controller owns one Backoff per connection and only touches it
// from its own event-handling path).
type Backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration

	// justStabilized is set by MarkStable and consumed by the very next
	// Next call. It lets a connection that has been up long enough to
	// reset the backoff hand back exactly base on the next failure,
	// instead of immediately doubling off of the reset value — see
	// NewBackoff's doc comment for why this matters.
	justStabilized bool
}

// NewBackoff creates a Backoff starting at base, doubling on every Next()
// call and capping at max.
//
// Two behaviors fall out of this type and are both load-bearing for the
// reconnect loop above it:
//
//  1. Called repeatedly with no MarkStable in between, Next produces
//     base*2, base*4, base*8, ... capped at max — every failure doubles the
//     delay from whatever it last was.
//  2. Called once right after MarkStable, Next produces exactly base — a
//     connection that survived long enough to stabilize earns a full reset
//     rather than one more doubling stacked on top of the reset value.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{base: base, max: max, current: base}
}

// Next advances and returns the delay to use for the upcoming reconnect
// attempt.
func (b *Backoff) Next() time.Duration {
	if b.justStabilized {
		b.justStabilized = false
		return b.current
	}

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// MarkStable resets the backoff to its base delay. Called when the
// connection-age clock observes a connection has stayed up long enough to
// be considered stable.
func (b *Backoff) MarkStable() {
	b.current = b.base
	b.justStabilized = true
}

// Current returns the stored delay without modifying state: base before the
// first Next call and right after MarkStable, otherwise the delay Next last
// returned — used for diagnostics/logging only.
func (b *Backoff) Current() time.Duration {
	return b.current
}
