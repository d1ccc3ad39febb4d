package errorsx

import "errors"

// ReasonedError tags an error with the pipeline stage it came from, so
// sinks and logs can classify failures without string matching.
type ReasonedError struct {
	Reason ReasonCode
	Err    error
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap tags err with reason. The first tag wins: wrapping an already
// reasoned error keeps the original reason, which is the one closest to
// the vendor boundary. Nil passes through.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Reason: reason, Err: err}
}

// Reason reports the tag on err, or ReasonUnknown when err is nil or
// untagged.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if err == nil || !errors.As(err, &re) {
		return ReasonUnknown
	}
	return re.Reason
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
