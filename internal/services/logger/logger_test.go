package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/tcpconsole/internal/protocol/payload"
	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerNeverAcceptsText(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	svc := New(zerolog.New(&buf))
	resp, accepted, err := svc.HandleText(context.Background(), []byte("status"))
	if resp != nil || accepted || err != nil {
		t.Fatalf("logger must decline text: %q %v %v", resp, accepted, err)
	}
	if _, _, err := svc.HandleText(context.Background(), []byte{0xff, 0xfe}); err != nil {
		t.Fatalf("binary text: %v", err)
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d", len(lines))
	}
	if lines[0]["text"] != "status" || lines[0]["service"] != Name {
		t.Fatalf("unexpected text log: %v", lines[0])
	}
	if lines[1]["raw"] != "fffe" {
		t.Fatalf("expected hex for invalid utf8: %v", lines[1])
	}
}

func TestLoggerTypedUsesDiagnosticNotation(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	svc := New(zerolog.New(&buf))
	b, err := payload.Marshal(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := svc.HandleTyped(context.Background(), b)
	if resp != nil || err != nil {
		t.Fatalf("logger must not respond: %v %v", resp, err)
	}
	lines := decodeLines(t, &buf)
	diag, _ := lines[0]["payload"].(string)
	if !strings.Contains(diag, `"n"`) || !strings.Contains(diag, "1") {
		t.Fatalf("unexpected payload field: %v", lines[0])
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("x", maxLoggedText+10)
	if got := clip(long); len(got) != maxLoggedText+3 {
		t.Fatalf("unexpected clip length %d", len(got))
	}
}
