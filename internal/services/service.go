// Package services holds the request and result shapes shared by the
// bundled console subscriptions, and the adapter that exposes an action
// executor as a typed and text subscription.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/tcpconsole/console"
	"github.com/rs/zerolog/log"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metadata is the identity of an executor.
type Metadata struct {
	Name        string
	Description string
}

// OperationSpec describes one supported action.
type OperationSpec struct {
	Name        string `cbor:"1,keyasint"`
	Description string `cbor:"2,keyasint,omitempty"`
	Idempotent  bool   `cbor:"3,keyasint,omitempty"`
}

// Request is the typed payload accepted by executor-backed services.
type Request struct {
	Action string            `cbor:"1,keyasint"`
	Args   map[string]string `cbor:"2,keyasint,omitempty"`
}

// Result is the typed payload returned for every Request.
type Result struct {
	Status   string `cbor:"1,keyasint"`
	Stdout   []byte `cbor:"2,keyasint,omitempty"`
	Stderr   []byte `cbor:"3,keyasint,omitempty"`
	ExitCode int32  `cbor:"4,keyasint"`
}

func OK(stdout string) Result {
	return Result{Status: StatusOK, Stdout: []byte(stdout)}
}

func Fail(exitCode int32, msg string) Result {
	return Result{Status: StatusError, Stderr: []byte(msg + "\n"), ExitCode: exitCode}
}

// Text renders r as a text-command response.
func (r Result) Text() []byte {
	if r.Status == StatusOK {
		return r.Stdout
	}
	return []byte(fmt.Sprintf("error exit=%d %s", r.ExitCode, strings.TrimSpace(string(r.Stderr))))
}

// Executor runs one named action.
type Executor interface {
	Metadata() Metadata
	Operations() []OperationSpec
	Execute(ctx context.Context, action string, args map[string]string) (Result, error)
}

// Subscription exposes an Executor to the console. Typed commands carry a
// CBOR Request; text commands take the form "<name> <action> [key=value ...]".
type Subscription struct {
	exec Executor
}

var (
	_ console.TypedHandler = (*Subscription)(nil)
	_ console.TextHandler  = (*Subscription)(nil)
	_ console.Named        = (*Subscription)(nil)
)

func Adapt(exec Executor) *Subscription {
	return &Subscription{exec: exec}
}

func (s *Subscription) Name() string {
	return s.exec.Metadata().Name
}

// HandleTyped returns an encoded Result. Action failures are reported in the
// Result; only an undecodable Request is a handler error.
func (s *Subscription) HandleTyped(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := console.UnmarshalPayload(payload, &req); err != nil {
		return nil, fmt.Errorf("%s: decode request: %w", s.Name(), err)
	}
	return console.MarshalPayload(s.run(ctx, req))
}

func (s *Subscription) HandleText(ctx context.Context, text []byte) ([]byte, bool, error) {
	req, ok := ParseText(s.Name(), text)
	if !ok {
		return nil, false, nil
	}
	return s.run(ctx, req).Text(), true, nil
}

func (s *Subscription) run(ctx context.Context, req Request) Result {
	action := strings.TrimSpace(req.Action)
	if action == "" || action == "help" {
		return OK(s.help())
	}
	res, err := s.exec.Execute(ctx, action, req.Args)
	if err != nil {
		log.Debug().Str("service", s.Name()).Str("action", action).Err(err).Msg("services action failed")
		if res.Status == "" {
			res = Fail(1, err.Error())
		}
	}
	return res
}

func (s *Subscription) help() string {
	meta := s.exec.Metadata()
	ops := append([]OperationSpec(nil), s.exec.Operations()...)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", meta.Name, meta.Description)
	for _, op := range ops {
		fmt.Fprintf(&b, "  %s\t%s\n", op.Name, op.Description)
	}
	return b.String()
}

// ParseText splits "<name> <action> [key=value ...]". Words without '=' are
// joined into the "args" key.
func ParseText(name string, text []byte) (Request, bool) {
	fields := strings.Fields(string(text))
	if len(fields) == 0 || fields[0] != name {
		return Request{}, false
	}
	req := Request{}
	if len(fields) > 1 {
		req.Action = fields[1]
	}
	var loose []string
	for _, f := range fields[min(len(fields), 2):] {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			loose = append(loose, f)
			continue
		}
		if req.Args == nil {
			req.Args = make(map[string]string)
		}
		req.Args[key] = value
	}
	if len(loose) > 0 {
		if req.Args == nil {
			req.Args = make(map[string]string)
		}
		req.Args["args"] = strings.Join(loose, " ")
	}
	return req, true
}
