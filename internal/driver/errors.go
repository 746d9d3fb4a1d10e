package driver

import (
	"errors"
	"fmt"
)

// Normalized error codes shared by all transport drivers.
var (
	// ErrTransport is an I/O failure on a bus, serial or socket handle.
	// Retried per driver policy, then the owning channel goes Stale.
	ErrTransport = errors.New("TRANSPORT")

	// ErrProtocol is a malformed or unverifiable response payload
	// (checksum or length validation failed). The channel value is left
	// unchanged; bad data never overwrites good data.
	ErrProtocol = errors.New("PROTOCOL")

	// ErrDaemon is a daemon-reported failure or an exhausted retry budget
	// against the PWM daemon. Surfaced synchronously to the command
	// issuer; the channel is marked Unconfirmed.
	ErrDaemon = errors.New("DAEMON")

	// ErrValidation is locally detected invalid input. Rejected before any
	// network call and never counted as a transport failure.
	ErrValidation = errors.New("VALIDATION")

	// ErrBroker is a telemetry broker failure. Handled by the publisher's
	// reconnect loop, never fatal to the gateway.
	ErrBroker = errors.New("BROKER")
)

// Error wraps an underlying failure with its normalized code and the
// operation that produced it. Unwrap yields the code so callers can use
// errors.Is against the sentinels above.
type Error struct {
	Code error
	Op   string
	Orig error
}

func (e *Error) Error() string {
	if e.Orig == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Code, e.Orig)
}

func (e *Error) Unwrap() error {
	return e.Code
}

// Transport classifies err as an I/O failure during op.
func Transport(op string, err error) error {
	return &Error{Code: ErrTransport, Op: op, Orig: err}
}

// Protocol classifies err as a malformed-response failure during op.
func Protocol(op string, err error) error {
	return &Error{Code: ErrProtocol, Op: op, Orig: err}
}

// Daemon classifies err as a daemon-reported failure during op.
func Daemon(op string, err error) error {
	return &Error{Code: ErrDaemon, Op: op, Orig: err}
}

// Validation rejects invalid local input for op.
func Validation(op string, err error) error {
	return &Error{Code: ErrValidation, Op: op, Orig: err}
}

// Broker classifies err as a telemetry broker failure during op.
func Broker(op string, err error) error {
	return &Error{Code: ErrBroker, Op: op, Orig: err}
}
