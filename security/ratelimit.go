package security

import (
	"sync"
	"time"

	"github.com/saquib34/react-iframe-bridge/errors"
)

// rateWindow tracks one origin's message count inside the current window.
type rateWindow struct {
	count       int
	windowStart time.Time
}

// rateLimiter enforces a per-origin message ceiling per one-second window.
// The window is wall-clock based: the counter resets once more than a second
// has elapsed since the window started. Brief bursts above the nominal rate
// at window boundaries are accepted behavior, not a defect to tighten.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	origins map[string]*rateWindow

	// now is swappable for tests
	now func() time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  time.Second,
		origins: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// check counts one message for origin, failing once the origin's count for
// the current window has reached the limit. A zero limit disables the check.
func (rl *rateLimiter) check(origin string) error {
	if rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.origins[origin]
	if !ok || now.Sub(win.windowStart) > rl.window {
		win = &rateWindow{windowStart: now}
		rl.origins[origin] = win
	}

	if win.count >= rl.limit {
		return errors.WrapSecurity(errors.ErrRateLimited, "Gate", "CheckRateLimit",
			"origin "+origin+" exceeded per-second window")
	}

	win.count++
	return nil
}

// reset clears all windows. Used on teardown.
func (rl *rateLimiter) reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.origins = make(map[string]*rateWindow)
}
