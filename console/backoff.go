package console

import "time"

// retryBackoff doubles from initial up to max.
type retryBackoff struct {
	initial time.Duration
	max     time.Duration
}

// acceptRetry paces accept retries after transient listener errors.
var acceptRetry = retryBackoff{initial: 5 * time.Millisecond, max: time.Second}

// delay returns the wait before retry attempt n (1-based).
func (b retryBackoff) delay(attempt int) time.Duration {
	if b.initial <= 0 {
		return 0
	}
	d := b.initial
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}
