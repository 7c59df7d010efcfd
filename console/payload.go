package console

import "github.com/danmuck/tcpconsole/internal/protocol/payload"

// MarshalPayload encodes v as deterministic CBOR for use as a typed command
// payload.
func MarshalPayload(v any) ([]byte, error) {
	return payload.Marshal(v)
}

// UnmarshalPayload decodes a typed payload into v. Unknown fields,
// duplicate map keys and trailing bytes are rejected.
func UnmarshalPayload(data []byte, v any) error {
	return payload.Unmarshal(data, v)
}
