// Package envelope owns the typed command wire shape.
//
// A typed command is a tlv payload holding exactly two fields, in order:
// the service tag (u16, never zero) and the opaque command payload (bytes).
// Anything else is not an envelope.
package envelope

import (
	"fmt"

	"github.com/danmuck/tcpconsole/internal/protocol/tlv"
)

// Field IDs from the envelope contract.
const (
	FieldService uint16 = 1
	FieldPayload uint16 = 2
)

// Requirement is one positional field rule.
type Requirement struct {
	ID   uint16
	Type uint8
}

var requirements = []Requirement{
	{FieldService, tlv.TypeU16},
	{FieldPayload, tlv.TypeBytes},
}

// Envelope is a decoded typed command.
type Envelope struct {
	Service uint16
	Payload []byte
}

type ValidationError struct {
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("envelope: %s", e.Reason)
	}
	return fmt.Sprintf("envelope: field=%d: %s", e.FieldID, e.Reason)
}

// Encode returns the canonical envelope bytes.
func Encode(env Envelope) ([]byte, error) {
	if env.Service == 0 {
		return nil, ValidationError{FieldID: FieldService, Reason: "reserved service 0"}
	}
	payload := env.Payload
	if payload == nil {
		payload = []byte{}
	}
	return tlv.EncodeFields([]tlv.Field{
		{ID: FieldService, Type: tlv.TypeU16, Value: tlv.PutU16(env.Service)},
		{ID: FieldPayload, Type: tlv.TypeBytes, Value: payload},
	}), nil
}

// Decode parses b strictly. Field order, field types, field count and the
// service value are all checked; b must be fully consumed.
func Decode(b []byte) (Envelope, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return Envelope{}, err
	}
	if err := Validate(fields); err != nil {
		return Envelope{}, err
	}
	service, err := tlv.U16FromBytes(fields[0].Value)
	if err != nil {
		return Envelope{}, ValidationError{FieldID: FieldService, Reason: err.Error()}
	}
	if service == 0 {
		return Envelope{}, ValidationError{FieldID: FieldService, Reason: "reserved service 0"}
	}
	return Envelope{Service: service, Payload: fields[1].Value}, nil
}

// Validate enforces the positional field layout. Unknown fields are rejected.
func Validate(fields []tlv.Field) error {
	if len(fields) != len(requirements) {
		return ValidationError{Reason: fmt.Sprintf("expected %d fields, got %d", len(requirements), len(fields))}
	}
	for i, req := range requirements {
		f := fields[i]
		if f.ID != req.ID {
			return ValidationError{FieldID: req.ID, Reason: fmt.Sprintf("unexpected field %d at position %d", f.ID, i)}
		}
		if err := tlv.MustType(f, req.Type); err != nil {
			return ValidationError{FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
