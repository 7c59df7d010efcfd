package payload

import (
	"bytes"
	"testing"
)

type execRequest struct {
	Name string   `cbor:"name"`
	Args []string `cbor:"args"`
}

func TestMarshalUnmarshalStruct(t *testing.T) {
	in := execRequest{Name: "uptime", Args: []string{"-p"}}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out execRequest
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Name != in.Name || len(out.Args) != 1 || out.Args[0] != "-p" {
		t.Fatalf("mismatch: %+v", out)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	m := map[string]int{"z": 1, "a": 2, "m": 3, "b": 4}
	first, err := Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic")
		}
	}
}

func TestUnmarshalRejectsTrailingAndUnknown(t *testing.T) {
	b, err := Marshal("ping")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var s string
	if err := Unmarshal(append(b, 0x00), &s); err == nil {
		t.Fatalf("expected trailing data error")
	}

	extra, err := Marshal(map[string]any{"name": "x", "args": []string{}, "bogus": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var req execRequest
	if err := Unmarshal(extra, &req); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestValid(t *testing.T) {
	b, err := Marshal([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !Valid(b) {
		t.Fatalf("expected valid cbor")
	}
	if Valid([]byte{0x83, 0x01}) {
		t.Fatalf("expected truncated array to be invalid")
	}
}
