package sensor

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCallback        = errors.New("sensor: missing callback")
	ErrPrivatePacket          = errors.New("sensor: private packets cannot be enqueued")
	ErrNilPacket              = errors.New("sensor: nil packet")
	ErrInvalidDestination     = errors.New("sensor: invalid destination")
	ErrQueueFull              = errors.New("sensor: custom packet queue full")
	ErrInvalidRequiredSensors = errors.New("sensor: required sensors must be vehicle ids")
	ErrDiscoveryUnsupported   = errors.New("sensor: transport does not support discovery")
	ErrDuplicateHandler       = errors.New("sensor: handler already registered")
	ErrUnknownSpecification   = errors.New("sensor: unknown specification")
	ErrPrivateHandler         = errors.New("sensor: handlers cannot be registered for private specifications")

	// ErrTransportClosed is returned by transports once the link is gone. The
	// node treats it as a terminal condition rather than a fault.
	ErrTransportClosed = errors.New("sensor: transport closed")
)

// InterruptError wraps an unexpected fault that ended a node's workers.
type InterruptError struct {
	Node string
	Err  error
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("sensor: node %s interrupted: %v", e.Node, e.Err)
}

func (e *InterruptError) Unwrap() error { return e.Err }
