// Package replay enforces timestamp freshness on inbound envelopes.
package replay

import (
	"time"

	"github.com/relaymesh/smsgate/pkg/message"
)

// Default acceptance windows. OTP gets the tightest window because a valid
// code lives only seconds; the asymmetry is policy, not a technical
// necessity, and both values are configurable.
const (
	DefaultOTPWindow     = 300 * time.Second
	DefaultGenericWindow = 600 * time.Second
)

// Guard rejects requests whose timestamp falls outside the acceptance
// window for the declared message type. It is stateless and safe for
// concurrent use.
type Guard struct {
	windows map[message.Type]time.Duration
	generic time.Duration
}

// NewGuard creates a Guard with the default per-type windows.
func NewGuard() *Guard {
	return &Guard{
		windows: map[message.Type]time.Duration{
			message.TypeOTP: DefaultOTPWindow,
		},
		generic: DefaultGenericWindow,
	}
}

// SetWindow overrides the acceptance window for a single type.
func (g *Guard) SetWindow(t message.Type, window time.Duration) {
	g.windows[t] = window
}

// SetGenericWindow overrides the window used for types without an explicit
// override.
func (g *Guard) SetGenericWindow(window time.Duration) {
	g.generic = window
}

// Window returns the acceptance window applied to the given type.
func (g *Guard) Window(t message.Type) time.Duration {
	if w, ok := g.windows[t]; ok {
		return w
	}
	return g.generic
}

// IsFresh reports whether |now - timestamp| is within the window for the
// declared type. The boundary is inclusive: a difference of exactly the
// window is still fresh. The comparison stays in integer seconds; converting
// a caller-supplied difference to a Duration could overflow int64.
func (g *Guard) IsFresh(timestamp int64, declared message.Type, now time.Time) bool {
	diff := now.Unix() - timestamp
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(g.Window(declared)/time.Second)
}
