package protocol

import (
	"github.com/shamaton/msgpack/v2"
)

// Encode serialises v with msgpack.
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserialises b into v.
func Decode(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
