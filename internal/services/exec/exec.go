// Package exec runs whitelisted host commands. Request arguments never
// reach the command line; each action maps to a fixed argv.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/tcpconsole/internal/services"
	"github.com/danmuck/tcpconsole/internal/tools"
)

const (
	Name           = "exec"
	DefaultTimeout = 10 * time.Second
)

var ErrNotAllowed = errors.New("exec: command not allowed")

// Command binds an action name to a fixed argv.
type Command struct {
	Action      string
	Argv        []string
	Description string
}

// DefaultCommands is the whitelist used when none is configured.
func DefaultCommands() []Command {
	return []Command{
		{Action: "uptime", Argv: []string{"uptime"}, Description: "host uptime and load"},
		{Action: "hostname", Argv: []string{"hostname"}, Description: "host name"},
		{Action: "date", Argv: []string{"date", "-u"}, Description: "current UTC time"},
	}
}

type Service struct {
	runner   tools.CommandRunner
	timeout  time.Duration
	commands map[string]Command
}

// New builds the service. Commands with an empty action or argv are
// skipped; a nil runner uses tools.ExecRunner.
func New(runner tools.CommandRunner, timeout time.Duration, commands ...Command) *Service {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Service{runner: runner, timeout: timeout, commands: make(map[string]Command, len(commands))}
	for _, c := range commands {
		action := strings.TrimSpace(c.Action)
		if action == "" || len(c.Argv) == 0 {
			continue
		}
		c.Action = action
		s.commands[action] = c
	}
	return s
}

func (s *Service) Metadata() services.Metadata {
	return services.Metadata{Name: Name, Description: "run whitelisted host commands"}
}

func (s *Service) Operations() []services.OperationSpec {
	ops := make([]services.OperationSpec, 0, len(s.commands))
	for _, c := range s.commands {
		desc := c.Description
		if desc == "" {
			desc = strings.Join(c.Argv, " ")
		}
		ops = append(ops, services.OperationSpec{Name: c.Action, Description: desc})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

func (s *Service) Execute(ctx context.Context, action string, _ map[string]string) (services.Result, error) {
	c, ok := s.commands[strings.TrimSpace(action)]
	if !ok {
		return services.Fail(126, fmt.Sprintf("command %q not allowed", action)), fmt.Errorf("%w: %q", ErrNotAllowed, action)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stdout, stderr, code, err := s.runner.Run(ctx, c.Argv[0], c.Argv[1:]...)
	res := services.Result{
		Status:   services.StatusOK,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: code,
	}
	if err != nil {
		res.Status = services.StatusError
		if len(res.Stderr) == 0 {
			res.Stderr = []byte(err.Error() + "\n")
		}
		return res, fmt.Errorf("exec %s: %w", c.Action, err)
	}
	return res, nil
}
