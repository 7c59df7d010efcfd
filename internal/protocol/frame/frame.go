package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PrefixLen is the width of the big-endian length prefix.
const PrefixLen = 4

var (
	ErrFrameTooLarge = errors.New("frame: payload too large")
	ErrShortPrefix   = errors.New("frame: short length prefix")
	ErrTruncated     = errors.New("frame: truncated payload")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// WithDefaults fills unset limits.
func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

// TooLargeError reports the announced length of a rejected frame.
type TooLargeError struct {
	Length uint32
	Max    uint32
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("frame: payload too large: length=%d max=%d", e.Length, e.Max)
}

func (e TooLargeError) Unwrap() error {
	return ErrFrameTooLarge
}

// Encode returns payload prefixed with its length.
func Encode(payload []byte) []byte {
	return Append(make([]byte, 0, PrefixLen+len(payload)), payload)
}

// Append appends the framed payload to dst.
func Append(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	limits = limits.WithDefaults()
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return TooLargeError{Length: uint32(min(uint64(len(payload)), uint64(^uint32(0)))), Max: limits.MaxPayloadBytes}
	}
	// prefix and payload leave in a single Write
	_, err := w.Write(Encode(payload))
	return err
}

// ReadFrame reads exactly one frame from r. A clean EOF before any prefix
// byte is returned as io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.WithDefaults()
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > limits.MaxPayloadBytes {
		return nil, TooLargeError{Length: n, Max: limits.MaxPayloadBytes}
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncated
			}
			return nil, err
		}
	}
	return payload, nil
}
