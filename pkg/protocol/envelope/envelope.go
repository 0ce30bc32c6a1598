package envelope

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Envelope is the unit exchanged over the wire: an event name and its payload.
type Envelope struct {
	Event   string `json:"event" msgpack:"event"`
	Payload any    `json:"payload" msgpack:"payload"`
}

func (e *Envelope) String() string {
	return fmt.Sprintf("event=%v payload=%v", e.Event, e.Payload)
}

// Bind decodes the payload into dst, which must be a pointer.
func (e *Envelope) Bind(dst any) error {
	return BindPayload(e.Payload, dst)
}

// BindPayload decodes a structural payload (as produced by Decode) into dst.
// Field names follow the `json` tag; scalar types are converted weakly.
func BindPayload(payload any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("failed to create payload decoder: %w", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return fmt.Errorf("failed to bind payload: %w", err)
	}
	return nil
}
