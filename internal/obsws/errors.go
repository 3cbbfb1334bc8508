package obsws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotConnected is returned when a request is issued before the client
	// reached StateIdentified.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectInProgress is returned by Connect while a handshake is running.
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrClosed is the cause carried by requests rejected on a local Disconnect.
	ErrClosed = errors.New("connection closed")
)

// ConnectivityError reports a socket that never opened, failed, or closed
// while work was outstanding. It is fatal to the session.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// AuthenticationError reports a rejected or unusable challenge.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RequestTimeoutError is returned when no response arrived in time. Only the
// single request failed; the connection stays usable.
type RequestTimeoutError struct {
	RequestType string
	RequestID   string
	Timeout     time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("%s %s: no response after %s", e.RequestType, e.RequestID, e.Timeout)
}

// RemoteRejectionError carries a requestStatus with result=false.
type RemoteRejectionError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RemoteRejectionError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("%s rejected (code %d)", e.RequestType, e.Code)
	}
	return fmt.Sprintf("%s rejected (code %d): %s", e.RequestType, e.Code, e.Comment)
}

// ProtocolError describes an inbound frame that could not be understood.
// The transport logs and drops these.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsAlreadyExists reports whether err is a remote rejection caused by the
// target resource already existing. The remote does not document a stable
// comment, so the status code is checked first and the comment text second.
func IsAlreadyExists(err error) bool {
	var rej *RemoteRejectionError
	if !errors.As(err, &rej) {
		return false
	}
	if rej.Code == StatusResourceAlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(rej.Comment), "already exists")
}

// IsRetryable reports whether the caller may reasonably retry the operation
// that produced err.
func IsRetryable(err error) bool {
	var (
		conn    *ConnectivityError
		timeout *RequestTimeoutError
	)
	switch {
	case errors.As(err, &timeout):
		return true
	case errors.As(err, &conn):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
