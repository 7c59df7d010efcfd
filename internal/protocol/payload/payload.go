// Package payload encodes typed command values as deterministic CBOR
// (RFC 8949 core deterministic encoding).
package payload

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("payload: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("payload: cbor dec mode: %v", err))
	}
}

func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes data into v. Duplicate map keys, unknown struct fields
// and trailing bytes are errors.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("payload: unmarshal: %w", err)
	}
	return nil
}

// Valid reports whether data is exactly one well-formed CBOR item.
func Valid(data []byte) bool {
	return cbor.Wellformed(data) == nil
}

// Diagnose renders data in CBOR diagnostic notation for logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
