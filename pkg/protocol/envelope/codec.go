package envelope

import (
	"fmt"
)

const (
	KeyEvent   = "event"
	KeyPayload = "payload"
)

// Codec encodes and decodes envelopes with a pluggable Serializer.
// The event name travels next to the payload, never inside it, so the
// payload may be any value the serializer supports.
type Codec struct {
	serializer Serializer
}

// NewCodec returns a Codec using s, or JSON when s is nil.
func NewCodec(s Serializer) *Codec {
	if s == nil {
		s = JSON{}
	}
	return &Codec{serializer: s}
}

func (c *Codec) Serializer() Serializer {
	return c.serializer
}

// Encode serializes {event, payload}. Values the serializer cannot represent,
// reference cycles and payloads nested deeper than MaxNesting yield an
// *EncodingError.
func (c *Codec) Encode(event string, payload any) (data []byte, err error) {
	if event == "" {
		return nil, &EncodingError{Event: event, Serializer: c.serializer.Name(), Err: ErrEmptyEvent}
	}
	if err := checkAcyclic(payload); err != nil {
		return nil, &EncodingError{Event: event, Serializer: c.serializer.Name(), Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = &EncodingError{Event: event, Serializer: c.serializer.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, err = c.serializer.Marshal(&Envelope{Event: event, Payload: payload})
	if err != nil {
		return nil, &EncodingError{Event: event, Serializer: c.serializer.Name(), Err: err}
	}
	return data, nil
}

// Decode deserializes data. Malformed bytes yield a *DecodingError; a well-formed
// value without a non-empty string "event" field yields (nil, nil), meaning the
// message is not routable and should be skipped.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	var raw any
	if err := c.serializer.Unmarshal(data, &raw); err != nil {
		return nil, &DecodingError{Serializer: c.serializer.Name(), Size: len(data), Err: err}
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	event, ok := m[KeyEvent].(string)
	if !ok || event == "" {
		return nil, nil
	}
	return &Envelope{Event: event, Payload: m[KeyPayload]}, nil
}
