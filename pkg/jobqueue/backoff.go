package jobqueue

import "time"

// BackoffKind selects the retry delay curve used when a job fails but
// has attempts remaining (spec.md §4.4).
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff computes the delay before a failed job is retried.
type Backoff struct {
	Kind    BackoffKind
	Base    time.Duration
	Max     time.Duration
}

// DefaultBackoff retries with exponential delay starting at 1s, capped
// at 5 minutes.
func DefaultBackoff() Backoff {
	return Backoff{Kind: BackoffExponential, Base: time.Second, Max: 5 * time.Minute}
}

// Next returns the delay before retrying a job on its attempt'th
// failure (1-indexed: attempt is the number of attempts already made,
// including the one that just failed).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch b.Kind {
	case BackoffLinear:
		d = b.Base * time.Duration(attempt)
	case BackoffExponential:
		d = b.Base
		for i := 1; i < attempt; i++ {
			d *= 2
			if b.Max > 0 && d >= b.Max {
				d = b.Max
				break
			}
		}
	default: // BackoffFixed
		d = b.Base
	}

	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
