package domain

import "github.com/jonboulle/clockwork"

// clock is the package-level time source used when a Normalizer has none.
// Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the default time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
