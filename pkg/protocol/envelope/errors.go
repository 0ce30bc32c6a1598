package envelope

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEvent        = errors.New("event name is empty")
	ErrUnknownSerializer = errors.New("unknown serializer")
	ErrCyclicPayload     = errors.New("payload contains a reference cycle")
	ErrNestingTooDeep    = errors.New("payload nesting too deep")
)

// EncodingError reports a payload the serializer could not represent.
type EncodingError struct {
	Event      string
	Serializer string
	Err        error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode event %q with %s: %v", e.Event, e.Serializer, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// DecodingError reports inbound bytes that could not be deserialized.
type DecodingError struct {
	Serializer string
	Size       int
	Err        error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %d bytes with %s: %v", e.Size, e.Serializer, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}
