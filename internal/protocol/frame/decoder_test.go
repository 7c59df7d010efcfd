package frame

import (
	"bytes"
	"errors"
	"testing"
)

func collect(t *testing.T, d *Decoder) [][]byte {
	t.Helper()
	var out [][]byte
	for payload, err := range d.Frames() {
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, payload)
	}
	return out
}

func TestDecoderRoundTripSingleFrame(t *testing.T) {
	payloads := [][]byte{{}, []byte("ping"), bytes.Repeat([]byte("x"), 4096)}
	for _, p := range payloads {
		d := NewDecoder(DefaultLimits())
		d.Feed(Encode(p))
		got := collect(t, d)
		if len(got) != 1 || !bytes.Equal(got[0], p) {
			t.Fatalf("round trip mismatch for len=%d: %d frames", len(p), len(got))
		}
		if got[0] == nil {
			t.Fatalf("empty frame must be non-nil")
		}
		if err := d.Finish(); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	var wire []byte
	wire = Append(wire, []byte("first"))
	wire = Append(wire, []byte{})
	wire = Append(wire, []byte("third frame"))

	d := NewDecoder(DefaultLimits())
	var got [][]byte
	for _, b := range wire {
		d.Feed([]byte{b})
		got = append(got, collect(t, d)...)
	}
	want := []string{"first", "", "third frame"}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Fatalf("frame %d: got=%q want=%q", i, got[i], want[i])
		}
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d", d.Buffered())
	}
}

func TestDecoderManyFramesOneFeed(t *testing.T) {
	var wire []byte
	for i := 0; i < 100; i++ {
		wire = Append(wire, []byte{byte(i)})
	}
	d := NewDecoder(DefaultLimits())
	d.Feed(wire)
	got := collect(t, d)
	if len(got) != 100 {
		t.Fatalf("expected 100 frames, got %d", len(got))
	}
	for i, p := range got {
		if len(p) != 1 || p[0] != byte(i) {
			t.Fatalf("frame %d out of order: %v", i, p)
		}
	}
}

func TestDecoderTooLargeIsSticky(t *testing.T) {
	d := NewDecoder(Limits{MaxPayloadBytes: 16})
	d.Feed([]byte{0, 0, 0, 17})
	_, _, err := d.Next()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	d.Feed(Encode([]byte("ok")))
	if _, _, err := d.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected sticky ErrFrameTooLarge, got %v", err)
	}
	if err := d.Finish(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected finish to report ErrFrameTooLarge, got %v", err)
	}
}

func TestDecoderTooLargeBeforePayloadArrives(t *testing.T) {
	d := NewDecoder(Limits{MaxPayloadBytes: 1024})
	d.Feed([]byte{0x7F, 0xFF, 0xFF, 0xFF})
	var seen error
	for _, err := range d.Frames() {
		seen = err
	}
	if !errors.Is(seen, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge without payload bytes, got %v", seen)
	}
}

func TestDecoderFinishReportsPartialInput(t *testing.T) {
	d := NewDecoder(DefaultLimits())
	d.Feed([]byte{0, 0})
	if err := d.Finish(); !errors.Is(err, ErrShortPrefix) {
		t.Fatalf("expected ErrShortPrefix, got %v", err)
	}

	d = NewDecoder(DefaultLimits())
	d.Feed([]byte{0, 0, 0, 10, 'a', 'b', 'c'})
	if got := collect(t, d); len(got) != 0 {
		t.Fatalf("expected no frames from truncated input, got %d", len(got))
	}
	if err := d.Finish(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecoderFramesAreCopies(t *testing.T) {
	d := NewDecoder(DefaultLimits())
	d.Feed(Encode([]byte("aaaa")))
	first := collect(t, d)[0]
	d.Feed(Encode([]byte("bbbb")))
	_ = collect(t, d)
	if string(first) != "aaaa" {
		t.Fatalf("earlier frame mutated by later feed: %q", first)
	}
}
