// error.go defines the error taxonomy shared by the pipeline packages.

package types

import (
	"fmt"
)

// ErrResource is returned when the resource manager fails to allocate,
// release or copy a buffer.
type ErrResource struct {
	Op        string
	Type      ResourceType
	SizeBytes uint64
	Err       error
}

func (e ErrResource) Error() string {
	return fmt.Sprintf("unable to %s a %s resource of %d bytes: %v", e.Op, e.Type, e.SizeBytes, e.Err)
}

func (e ErrResource) Unwrap() error {
	return e.Err
}

// ErrCodec is returned when a codec call or a pipeline stage reports a non-success result code.
type ErrCodec struct {
	Stage Stage
	Op    string
	Code  ResultCode
}

func (e ErrCodec) Error() string {
	if e.Stage != UndefinedStage {
		return fmt.Sprintf("failed to %s frame (%s \"%s\")", e.Stage, e.Code.Hex(), e.Code)
	}
	return fmt.Sprintf("%s: unsuccessful result code: %s (%s)", e.Op, e.Code.Hex(), e.Code)
}

// ErrValue is returned on an invalid argument value.
type ErrValue struct {
	Name   string
	Value  any
	Reason string
}

func (e ErrValue) Error() string {
	return fmt.Sprintf("invalid value of %s: %v: %s", e.Name, e.Value, e.Reason)
}

// ErrConfiguration is returned when an object cannot be constructed with the given settings.
type ErrConfiguration struct {
	Reason string
}

func (e ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// ErrConsistency signals that the processed image does not reference the buffer of the slot it was processed in.
type ErrConsistency struct {
	Expected uintptr
	Actual   uintptr
}

func (e ErrConsistency) Error() string {
	return fmt.Sprintf("processed image does not match the buffer: expected resource 0x%X, got 0x%X", e.Expected, e.Actual)
}

type ErrNotImplemented struct {
	Err error
}

func (e ErrNotImplemented) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not implemented: %v", e.Err)
	}
	return "not implemented"
}

func (e ErrNotImplemented) Unwrap() error {
	return e.Err
}

// ErrIO is returned when a clip cannot be accessed.
type ErrIO struct {
	Path string
	Err  error
}

func (e ErrIO) Error() string {
	return fmt.Sprintf("unable to access '%s': %v", e.Path, e.Err)
}

func (e ErrIO) Unwrap() error {
	return e.Err
}

// ErrFormat is returned when a clip is not a valid raw clip.
type ErrFormat struct {
	Path string
	Err  error
}

func (e ErrFormat) Error() string {
	return fmt.Sprintf("'%s' is not a valid clip: %v", e.Path, e.Err)
}

func (e ErrFormat) Unwrap() error {
	return e.Err
}
