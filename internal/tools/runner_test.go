package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
)

func TestExecRunnerCapturesOutputAndExitCode(t *testing.T) {
	testlog.Start(t)

	stdout, stderr, code, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if strings.TrimSpace(string(stdout)) != "out" || strings.TrimSpace(string(stderr)) != "err" {
		t.Fatalf("unexpected output stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	testlog.Start(t)

	stdout, _, code, err := ExecRunner{}.Run(context.Background(), "echo", "hello")
	if err != nil || code != 0 {
		t.Fatalf("unexpected result code=%d err=%v", code, err)
	}
	if strings.TrimSpace(string(stdout)) != "hello" {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	testlog.Start(t)

	_, _, code, err := ExecRunner{}.Run(context.Background(), "tcpconsole-definitely-missing-binary")
	if err == nil || code != 127 {
		t.Fatalf("expected 127 for missing binary, got code=%d err=%v", code, err)
	}
}

func TestExecRunnerHonorsContext(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, _, err := ExecRunner{}.Run(ctx, "sleep", "5")
	if err == nil {
		t.Fatalf("expected error from cancelled command")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("command was not killed on context deadline")
	}
}
