package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/tcpconsole/internal/protocol/tlv"
	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	testlog.Start(t)

	for _, in := range []Envelope{
		{Service: 1, Payload: []byte("ping")},
		{Service: 0xFFFF, Payload: []byte{}},
		{Service: 42, Payload: bytes.Repeat([]byte{0}, 1024)},
	} {
		b, err := Encode(in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Service != in.Service || !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
		}
	}
}

func TestEncodeRejectsReservedService(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(Envelope{Service: 0}); err == nil {
		t.Fatalf("expected reserved service error")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	testlog.Start(t)

	valid, err := Encode(Envelope{Service: 3, Payload: []byte("x")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := map[string][]byte{
		"empty":     {},
		"text":      []byte("status"),
		"truncated": valid[:len(valid)-1],
		"trailing":  append(append([]byte{}, valid...), 0),
		"swapped": tlv.EncodeFields([]tlv.Field{
			{ID: FieldPayload, Type: tlv.TypeBytes, Value: []byte("x")},
			{ID: FieldService, Type: tlv.TypeU16, Value: tlv.PutU16(3)},
		}),
		"wrong type": tlv.EncodeFields([]tlv.Field{
			{ID: FieldService, Type: tlv.TypeString, Value: tlv.PutU16(3)},
			{ID: FieldPayload, Type: tlv.TypeBytes, Value: []byte("x")},
		}),
		"extra field": tlv.EncodeFields([]tlv.Field{
			{ID: FieldService, Type: tlv.TypeU16, Value: tlv.PutU16(3)},
			{ID: FieldPayload, Type: tlv.TypeBytes, Value: []byte("x")},
			{ID: 9, Type: tlv.TypeBytes},
		}),
		"wide service": tlv.EncodeFields([]tlv.Field{
			{ID: FieldService, Type: tlv.TypeU16, Value: []byte{0, 0, 3}},
			{ID: FieldPayload, Type: tlv.TypeBytes, Value: []byte("x")},
		}),
		"zero service": tlv.EncodeFields([]tlv.Field{
			{ID: FieldService, Type: tlv.TypeU16, Value: tlv.PutU16(0)},
			{ID: FieldPayload, Type: tlv.TypeBytes, Value: []byte("x")},
		}),
	}
	for name, b := range cases {
		if _, err := Decode(b); err == nil {
			t.Fatalf("%s: expected decode failure", name)
		}
	}
}

func TestValidateReportsField(t *testing.T) {
	testlog.Start(t)
	err := Validate([]tlv.Field{
		{ID: FieldService, Type: tlv.TypeU16, Value: tlv.PutU16(1)},
		{ID: FieldPayload, Type: tlv.TypeU32, Value: []byte{0, 0, 0, 1}},
	})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldPayload || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}
