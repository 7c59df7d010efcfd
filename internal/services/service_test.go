package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/tcpconsole/console"
	"github.com/danmuck/tcpconsole/internal/testutil/testlog"
)

type fakeExecutor struct {
	calls []Request
	err   error
	res   Result
}

func (f *fakeExecutor) Metadata() Metadata {
	return Metadata{Name: "fake", Description: "test executor"}
}

func (f *fakeExecutor) Operations() []OperationSpec {
	return []OperationSpec{{Name: "zap", Description: "z"}, {Name: "add", Description: "a"}}
}

func (f *fakeExecutor) Execute(_ context.Context, action string, args map[string]string) (Result, error) {
	f.calls = append(f.calls, Request{Action: action, Args: args})
	return f.res, f.err
}

func TestParseText(t *testing.T) {
	testlog.Start(t)

	req, ok := ParseText("kv", []byte("  kv put key=a value=b=c loose words\n"))
	if !ok {
		t.Fatalf("expected kv text to parse")
	}
	if req.Action != "put" || req.Args["key"] != "a" || req.Args["value"] != "b=c" || req.Args["args"] != "loose words" {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, ok = ParseText("kv", []byte("kv"))
	if !ok || req.Action != "" || req.Args != nil {
		t.Fatalf("unexpected bare request: %+v ok=%v", req, ok)
	}

	for _, in := range []string{"", "kvx get", "status", "\x00\x01"} {
		if _, ok := ParseText("kv", []byte(in)); ok {
			t.Fatalf("expected %q to be declined", in)
		}
	}
}

func TestSubscriptionHelpListsSortedOperations(t *testing.T) {
	testlog.Start(t)

	ex := &fakeExecutor{}
	resp, accepted, err := Adapt(ex).HandleText(context.Background(), []byte("fake help"))
	if err != nil || !accepted {
		t.Fatalf("help: accepted=%v err=%v", accepted, err)
	}
	out := string(resp)
	if !strings.HasPrefix(out, "fake: test executor\n") || strings.Index(out, "add") > strings.Index(out, "zap") {
		t.Fatalf("unexpected help: %q", out)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("help must not reach the executor")
	}
}

func TestSubscriptionFailuresBecomeResults(t *testing.T) {
	testlog.Start(t)

	ex := &fakeExecutor{err: errors.New("boom")}
	sub := Adapt(ex)

	b, err := console.MarshalPayload(Request{Action: "zap"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := sub.HandleTyped(context.Background(), b)
	if err != nil {
		t.Fatalf("handle typed: %v", err)
	}
	var res Result
	if err := console.UnmarshalPayload(out, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Status != StatusError || res.ExitCode != 1 || !strings.Contains(string(res.Stderr), "boom") {
		t.Fatalf("unexpected result: %+v", res)
	}

	text, _, _ := sub.HandleText(context.Background(), []byte("fake zap"))
	if string(text) != "error exit=1 boom" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestSubscriptionRejectsBadTypedPayload(t *testing.T) {
	testlog.Start(t)

	if _, err := Adapt(&fakeExecutor{}).HandleTyped(context.Background(), []byte{0xff}); err == nil {
		t.Fatalf("expected decode error")
	}
}
