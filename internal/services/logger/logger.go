// Package logger records every command it is offered and never answers.
// Bind it first so it sees text commands before another service accepts
// them.
package logger

import (
	"context"
	"unicode/utf8"

	"github.com/danmuck/tcpconsole/internal/protocol/payload"
	"github.com/rs/zerolog"
)

const (
	Name = "logger"

	maxLoggedText = 256
)

type Service struct {
	log zerolog.Logger
}

func New(logger zerolog.Logger) *Service {
	return &Service{log: logger.With().Str("service", Name).Logger()}
}

func (*Service) Name() string {
	return Name
}

func (s *Service) HandleTyped(_ context.Context, data []byte) ([]byte, error) {
	ev := s.log.Info().Int("bytes", len(data))
	if diag, err := payload.Diagnose(data); err == nil {
		ev = ev.Str("payload", clip(diag))
	} else {
		ev = ev.Hex("raw", data[:min(len(data), maxLoggedText)])
	}
	ev.Msg("logger typed command")
	return nil, nil
}

func (s *Service) HandleText(_ context.Context, text []byte) ([]byte, bool, error) {
	ev := s.log.Info().Int("bytes", len(text))
	if utf8.Valid(text) {
		ev = ev.Str("text", clip(string(text)))
	} else {
		ev = ev.Hex("raw", text[:min(len(text), maxLoggedText)])
	}
	ev.Msg("logger text command")
	return nil, false, nil
}

func clip(s string) string {
	if len(s) <= maxLoggedText {
		return s
	}
	return s[:maxLoggedText] + "..."
}
