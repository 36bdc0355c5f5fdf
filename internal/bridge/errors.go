package bridge

import "fmt"

// TransportError means the bridge process could not be reached or the
// connection failed before a response arrived.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bridge %s failed", e.Op)
	}
	return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError is an explicit backend rejection of a request, e.g. an
// invalid state transition or a missing entity.
type RejectedError struct {
	Method  string
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("%s rejected (%s)", e.Method, e.Code)
	}
	return fmt.Sprintf("%s rejected", e.Method)
}
