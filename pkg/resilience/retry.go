package resilience

import "time"

// RetryPolicy retries transient vendor failures with doubling backoff.
// Fatal errors (bad credentials, exhausted quota) are returned immediately
// since repeating them only burns the rate limit further.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

func (r RetryPolicy) Do(fn func() error) error {
	wait := r.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if IsFatal(err) || attempt == r.MaxRetries {
			return err
		}
		time.Sleep(wait)
		wait *= 2
	}
}
