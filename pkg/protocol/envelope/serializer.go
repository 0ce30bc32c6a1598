package envelope

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts structured values to and from bytes.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Binary reports whether encoded frames must be sent as binary messages.
	Binary() bool
}

const (
	SerializerJSON    = "json"
	SerializerMsgPack = "msgpack"
)

// Lookup returns the serializer registered under name. An empty name selects JSON.
func Lookup(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SerializerJSON:
		return JSON{}, nil
	case SerializerMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSerializer, name)
	}
}

// jsonAPI decodes integers into interface values as int64 so ids above 2^53
// survive a round trip. Other numbers decode as float64.
var jsonAPI = sonic.Config{UseInt64: true}.Froze()

// JSON is the text serializer.
type JSON struct{}

func (JSON) Name() string { return SerializerJSON }

func (JSON) Binary() bool { return false }

func (JSON) Marshal(v any) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return jsonAPI.Unmarshal(data, v)
}

// MsgPack is the binary serializer. Integers decode as int64/uint64 and
// maps with string keys as map[string]any. The encoder has no cycle guard;
// Codec.Encode checks payloads before they reach it.
type MsgPack struct{}

func (MsgPack) Name() string { return SerializerMsgPack }

func (MsgPack) Binary() bool { return true }

func (MsgPack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgPack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
