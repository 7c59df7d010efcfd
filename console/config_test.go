package console

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
)

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name  string
		cfg   Config
		field string
		want  error
	}{
		{"port high", Config{Port: 70000}, "port", ErrInvalidPort},
		{"port negative", Config{Port: -1}, "port", ErrInvalidPort},
		{"non-loopback host", Config{Host: "0.0.0.0", LoopbackOnly: true}, "host", ErrNonLoopbackBind},
		{"idle timeout", Config{IdleTimeout: -time.Second}, "idle_timeout", ErrInvalidTimeout},
		{"write timeout", Config{WriteTimeout: -time.Second}, "write_timeout", ErrInvalidTimeout},
		{"frame size", Config{MaxFrameSize: 3}, "max_frame_size", ErrInvalidFrameSize},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigError, got %v", tc.name, err)
		}
		if cfgErr.Field != tc.field || !errors.Is(err, tc.want) {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}

	for _, cfg := range []Config{
		{},
		{Port: 0},
		{Port: 65535},
		{Host: "localhost", LoopbackOnly: true},
		{Host: "::1", LoopbackOnly: true},
		{Host: "0.0.0.0"},
	} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected %+v to validate: %v", cfg, err)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)

	cfg := Config{LoopbackOnly: true, Welcome: "hi"}.WithDefaults()
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("expected loopback host, got %q", cfg.Host)
	}
	if cfg.Welcome != "hi\n" {
		t.Fatalf("expected newline-terminated welcome, got %q", cfg.Welcome)
	}
	if cfg.MaxFrameSize != 8<<20 || cfg.WriteTimeout != DefaultWriteTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Address() != "127.0.0.1:0" {
		t.Fatalf("unexpected address: %q", cfg.Address())
	}

	cfg = Config{Welcome: "ready\n"}.WithDefaults()
	if cfg.Welcome != "ready\n" {
		t.Fatalf("welcome newline doubled: %q", cfg.Welcome)
	}
	if (Config{}).WithDefaults().Welcome != "" {
		t.Fatalf("empty welcome must stay empty")
	}
}
