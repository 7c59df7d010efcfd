package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tcpconsole/internal/services"
	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
)

type fakeRunner struct {
	calls    []string
	stdout   string
	code     int32
	err      error
	deadline bool
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	r.calls = append(r.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	_, r.deadline = ctx.Deadline()
	return []byte(r.stdout), nil, r.code, r.err
}

func TestExecRunsWhitelistedArgv(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{stdout: "up 3 days\n"}
	svc := New(runner, time.Second, DefaultCommands()...)
	res, err := svc.Execute(context.Background(), "date", map[string]string{"args": "; rm -rf /"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != services.StatusOK || string(res.Stdout) != "up 3 days\n" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "date -u" {
		t.Fatalf("request args must not reach argv: %v", runner.calls)
	}
	if !runner.deadline {
		t.Fatalf("expected command to run under a deadline")
	}
}

func TestExecRejectsUnknownAction(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{}
	res, err := New(runner, 0, DefaultCommands()...).Execute(context.Background(), "reboot", nil)
	if !errors.Is(err, ErrNotAllowed) || res.ExitCode != 126 {
		t.Fatalf("expected not allowed, got %+v %v", res, err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner must not be called")
	}
}

func TestExecReportsCommandFailure(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{code: 2, err: errors.New("exit status 2")}
	sub := services.Adapt(New(runner, 0, Command{Action: "fail", Argv: []string{"false"}}))
	out, accepted, err := sub.HandleText(context.Background(), []byte("exec fail"))
	if err != nil || !accepted {
		t.Fatalf("text exec: %v %v", accepted, err)
	}
	if string(out) != "error exit=2 exit status 2" {
		t.Fatalf("unexpected text: %q", out)
	}
}

func TestExecOperationsSkipsInvalidCommands(t *testing.T) {
	testlog.Start(t)

	svc := New(nil, 0, Command{Action: "b", Argv: []string{"true"}}, Command{Action: " "}, Command{Action: "a", Argv: []string{"true"}, Description: "first"})
	ops := svc.Operations()
	if len(ops) != 2 || ops[0].Name != "a" || ops[1].Description != "true" {
		t.Fatalf("unexpected operations: %+v", ops)
	}
}

func TestExecLocalRunner(t *testing.T) {
	testlog.Start(t)

	svc := New(nil, 0, Command{Action: "hello", Argv: []string{"echo", "hello"}})
	res, err := svc.Execute(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hello" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}
