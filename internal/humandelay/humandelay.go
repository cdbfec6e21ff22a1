// Package humandelay provides the randomized delays the Site Adapter (C2)
// uses to simulate human pacing while typing and submitting prompts.
//
// No jitter/sampling library appears anywhere in the retrieved example
// corpus, so this is one of the few packages built directly on the standard
// library (math/rand/v2); see DESIGN.md for the justification.
package humandelay

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleep blocks for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Range returns a uniformly sampled duration in [min, max].
func Range(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rand.Int64N(int64(span)+1))
}

// Think sleeps the 1.2–2.0s "think" delay from spec.md §4.3 step 2.
func Think(ctx context.Context) {
	Sleep(ctx, Range(1200*time.Millisecond, 2000*time.Millisecond))
}

// PreSend sleeps the 0.8–1.6s delay before locating the send control
// (spec.md §4.3 step 6).
func PreSend(ctx context.Context) {
	Sleep(ctx, Range(800*time.Millisecond, 1600*time.Millisecond))
}

// Short sleeps a small delay used around hover/click/focus steps.
func Short(ctx context.Context) {
	Sleep(ctx, Range(60*time.Millisecond, 180*time.Millisecond))
}

// ChunkSize returns a human-typing chunk length of 1–3 characters
// (spec.md §4.3 step 5).
func ChunkSize() int {
	return 1 + rand.IntN(3)
}

// CharDelay returns the per-chunk typing delay uniformly sampled in
// 40–120ms (spec.md §4.3 step 5).
func CharDelay() time.Duration {
	return Range(40*time.Millisecond, 120*time.Millisecond)
}

// MaybeExtraPause sleeps an extra 80–280ms with probability 0.2, as
// spec.md §4.3 step 5 requires.
func MaybeExtraPause(ctx context.Context) {
	if rand.Float64() < 0.2 {
		Sleep(ctx, Range(80*time.Millisecond, 280*time.Millisecond))
	}
}
