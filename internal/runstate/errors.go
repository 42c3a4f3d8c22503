package runstate

import "errors"

var (
	ErrNotRunning        = errors.New("no run in progress")
	ErrRunInProgress     = errors.New("run in progress")
	ErrRunFinished       = errors.New("run already finished")
	ErrUnknownJob        = errors.New("unknown job reference")
	ErrStaleTransition   = errors.New("stale stage transition")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrMalformedEvent    = errors.New("malformed event")
)

// IsIgnorable reports whether err describes an event the store dropped
// without changing the run.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrRunFinished) ||
		errors.Is(err, ErrUnknownJob) ||
		errors.Is(err, ErrStaleTransition) ||
		errors.Is(err, ErrMalformedEvent)
}
