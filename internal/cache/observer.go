package cache

import "time"

// Expiration mechanisms reported to ObserveExpired.
const (
	ExpiredLazy  = "lazy"
	ExpiredSweep = "sweep"
)

// Observer receives engine events, typically to export them as metrics.
// Implementations must be safe for concurrent use and must not call back
// into the engine.
type Observer interface {
	// ObserveCommand is called once per engine operation. result is the
	// Kind of the returned error ("ok" on success).
	ObserveCommand(op, result string, d time.Duration)

	// ObserveRead is called once per logical key read.
	ObserveRead(hit bool)

	// ObserveExpired is called when expired entries are reclaimed.
	ObserveExpired(mechanism string, n int)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ObserveCommand(string, string, time.Duration) {}
func (NopObserver) ObserveRead(bool)                             {}
func (NopObserver) ObserveExpired(string, int)                   {}
