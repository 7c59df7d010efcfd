package frame

import (
	"encoding/binary"
	"iter"
)

// Decoder accumulates stream bytes and cuts them into frames. It is
// restartable: Feed may be called with any split of the stream.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	limits Limits
	buf    []byte
	off    int
	err    error
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits.WithDefaults()}
}

// Feed appends stream bytes. p is copied.
func (d *Decoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	d.compact()
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame. ok is false when more bytes are
// needed. Once an error is returned the decoder stays failed.
func (d *Decoder) Next() (payload []byte, ok bool, err error) {
	if d.err != nil {
		return nil, false, d.err
	}
	pending := d.buf[d.off:]
	if len(pending) < PrefixLen {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(pending[:PrefixLen])
	if n > d.limits.MaxPayloadBytes {
		d.err = TooLargeError{Length: n, Max: d.limits.MaxPayloadBytes}
		return nil, false, d.err
	}
	if uint64(len(pending)-PrefixLen) < uint64(n) {
		return nil, false, nil
	}
	end := PrefixLen + int(n)
	payload = make([]byte, n)
	copy(payload, pending[PrefixLen:end])
	d.off += end
	return payload, true, nil
}

// Frames yields every complete frame currently buffered, stopping when more
// bytes are needed or on the first error.
func (d *Decoder) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			payload, ok, err := d.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(payload, nil) {
				return
			}
		}
	}
}

// Buffered reports bytes received but not yet returned as a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Finish is called at end of stream and reports leftover partial input.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	switch pending := d.Buffered(); {
	case pending == 0:
		return nil
	case pending < PrefixLen:
		return ErrShortPrefix
	default:
		return ErrTruncated
	}
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
		return
	}
	if d.off < len(d.buf)/2 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}
