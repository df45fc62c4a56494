package ws

import "time"

const (
	DefaultBackoffBase       = time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultReconnectAttempts = 5
	maxBackoffShift          = 30
)

// Backoff is the reconnect policy: Base doubled per consecutive failure,
// capped at Max, abandoned once MaxAttempts delays have been handed out.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        DefaultBackoffBase,
		Max:         DefaultBackoffMax,
		MaxAttempts: DefaultReconnectAttempts,
	}
}

// Delay returns how long to wait after the failure of the given attempt
// (0 for the connection that was open or the first dial). ok is false
// when no further attempt should be made.
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt >= b.MaxAttempts {
		return 0, false
	}
	shift := min(attempt, maxBackoffShift)
	d := b.Base << shift
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d, true
}
