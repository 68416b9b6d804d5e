package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchema               = errors.New("protocol: schema violation")
	ErrNotSet               = errors.New("protocol: field not set")
	ErrIncomplete           = errors.New("protocol: packet incomplete")
	ErrUnknownSpecification = errors.New("protocol: unknown specification")
	ErrTruncated            = errors.New("protocol: truncated data")
)

// SchemaError reports a field that the packet's specification does not allow.
type SchemaError struct {
	Specification string
	Field         string
	Reason        string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: specification=%q: %s", e.Specification, e.Reason)
	}
	return fmt.Sprintf("protocol: specification=%q field=%q: %s", e.Specification, e.Field, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// NotSetError reports a read of a field that has no value.
type NotSetError struct {
	Field string
}

func (e *NotSetError) Error() string {
	return fmt.Sprintf("protocol: field %q not set", e.Field)
}

func (e *NotSetError) Is(target error) bool { return target == ErrNotSet }

// IncompleteError lists the declared fields still missing on a full read.
type IncompleteError struct {
	Specification string
	Missing       []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf(
		"protocol: specification=%q missing fields: %s",
		e.Specification,
		strings.Join(e.Missing, ","),
	)
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }
