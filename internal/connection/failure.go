package connection

import "fmt"

// FailureKind classifies how a connection ended without a terminal event.
type FailureKind int

const (
	ConnectFailed FailureKind = iota
	StreamInterrupted
	PeerError
)

func (k FailureKind) String() string {
	switch k {
	case ConnectFailed:
		return "connect_failed"
	case StreamInterrupted:
		return "stream_interrupted"
	case PeerError:
		return "peer_error"
	default:
		return "unknown"
	}
}

// Failure is reported through Callbacks.OnFailure, or returned by Manager.Start
// when the connection could not be opened.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}
