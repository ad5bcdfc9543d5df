package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout indicates the link returned no data within its read timeout.
	ErrReadTimeout = errors.New("read timeout")
	// ErrRunning indicates the Proxy is already running.
	ErrRunning = errors.New("already running")
)

// LinkOp is the operation on a link which failed.
type LinkOp string

// Link operations.
const (
	OpOpen  LinkOp = "open"
	OpRead  LinkOp = "read"
	OpWrite LinkOp = "write"
)

// LinkError is a fatal error of a link. The link is not usable afterwards.
type LinkError struct {
	Op   LinkOp
	Name string
	Err  error
}

// Error implements error.
func (e *LinkError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("link %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("link %s %s: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the cause.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// PayloadTooLargeError indicates the payload exceeds what the length
// class of the code can carry.
type PayloadTooLargeError struct {
	Code byte
	Size int
	Max  int
}

// Error implements error.
func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload of 0x%02x too large: %d > %d", e.Code, e.Size, e.Max)
}

// PayloadLengthError indicates a payload shorter than a fixed length class.
type PayloadLengthError struct {
	Code byte
	Size int
	Want int
}

// Error implements error.
func (e *PayloadLengthError) Error() string {
	return fmt.Sprintf("payload of 0x%02x has %d bytes, expect %d", e.Code, e.Size, e.Want)
}
