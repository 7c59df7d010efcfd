// Package echo answers typed commands with their own payload and text
// commands of the form "echo <words>" with the words.
package echo

import (
	"bytes"
	"context"
)

const Name = "echo"

var prefix = []byte(Name)

type Service struct{}

func New() *Service {
	return &Service{}
}

func (*Service) Name() string {
	return Name
}

func (*Service) HandleTyped(_ context.Context, payload []byte) ([]byte, error) {
	return append([]byte{}, payload...), nil
}

func (*Service) HandleText(_ context.Context, text []byte) ([]byte, bool, error) {
	line := bytes.TrimSpace(text)
	if !bytes.HasPrefix(line, prefix) {
		return nil, false, nil
	}
	rest := line[len(prefix):]
	if len(rest) > 0 && rest[0] != ' ' && rest[0] != '\t' {
		return nil, false, nil
	}
	return append([]byte{}, bytes.TrimSpace(rest)...), true, nil
}
