package resilience

import "errors"

// RateLimitError represents a provider rate limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// FatalError marks an unrecoverable provider failure (bad credentials,
// exhausted quota). Callers must not retry these.
type FatalError struct {
	Provider string
	Message  string
}

func (e FatalError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "fatal provider error"
}

// IsFatal returns true when the error is a FatalError. Rate limits against
// a hard quota count as fatal too.
func IsFatal(err error) bool {
	var fe FatalError
	return errors.As(err, &fe)
}
