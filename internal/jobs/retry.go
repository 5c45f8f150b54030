package jobs

import "time"

// backoffSchedule is a fixed table indexed by attempt number (1-based).
// Attempts beyond the table reuse the last entry.
var backoffSchedule = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	1 * time.Hour,
	3 * time.Hour,
	6 * time.Hour,
}

// BackoffDelay returns the retry delay for a given attempt count.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(backoffSchedule) {
		attempts = len(backoffSchedule)
	}
	return backoffSchedule[attempts-1]
}

// ShouldRetry classifies a handler failure. Explicit non-retryable failures
// and upstream auth errors are terminal; rate limits and server errors are
// transient; everything else defaults to transient so plain DB/network
// hiccups get retried.
func ShouldRetry(err error) bool {
	je, ok := asJobError(err)
	if !ok {
		return true
	}
	if je.Kind == KindNonRetryable {
		return false
	}
	switch {
	case je.HTTPStatus == 401 || je.HTTPStatus == 403:
		return false
	case je.HTTPStatus == 429:
		return true
	case je.HTTPStatus >= 500:
		return true
	}
	return true
}
