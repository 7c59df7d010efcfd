package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/tcpconsole/console"
	"github.com/danmuck/tcpconsole/internal/services"
	"github.com/danmuck/tcpconsole/internal/services/echo"
	"github.com/danmuck/tcpconsole/internal/services/status"
	"github.com/spf13/cobra"
)

type clientFlags struct {
	addr    string
	timeout time.Duration
	welcome bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "", "console address (default: host:port from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "round-trip timeout")
	cmd.Flags().BoolVar(&f.welcome, "welcome", true, "read and print the server greeting")
}

func (f *clientFlags) dial(ctx context.Context, root *rootOptions, out io.Writer) (*console.Client, error) {
	cfg, err := loadAppConfig(root.configPath, nil)
	if err != nil {
		return nil, err
	}
	addr := f.addr
	if addr == "" {
		addr = cfg.Console.WithDefaults().Address()
	}
	c, err := console.Dial(ctx, addr, console.ClientOptions{
		ExpectWelcome: f.welcome && cfg.Console.Welcome != "",
		Greeting:      cfg.Console.Greeting,
		MaxFrameSize:  cfg.Console.MaxFrameSize,
		DialTimeout:   f.timeout,
	})
	if err != nil {
		return nil, err
	}
	if w := c.Welcome(); w != "" {
		fmt.Fprint(out, w)
	}
	return c, nil
}

func newSendCmd(root *rootOptions) *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "send <service> [action] [key=value ...]",
		Short: "Send one typed command and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, name, err := resolveService(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			c, err := flags.dial(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()
			return sendTyped(ctx, c, id, name, args[1:], cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func newTextCmd(root *rootOptions) *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "text <words ...>",
		Short: "Send one text command and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			c, err := flags.dial(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Close()
			return sendText(ctx, c, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

// resolveService accepts a bundled service name or a numeric id.
func resolveService(arg string) (console.ServiceID, string, error) {
	if id, ok := serviceIDs[arg]; ok {
		return id, arg, nil
	}
	n, err := strconv.ParseUint(arg, 10, 16)
	if err != nil || n == 0 {
		return 0, "", fmt.Errorf("unknown service %q", arg)
	}
	id := console.ServiceID(n)
	for name, known := range serviceIDs {
		if known == id {
			return id, name, nil
		}
	}
	return id, "", nil
}

func sendTyped(ctx context.Context, c *console.Client, id console.ServiceID, name string, args []string, out io.Writer) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(deadline)
	}
	switch name {
	case echo.Name:
		if err := c.SendRaw(id, []byte(strings.Join(args, " "))); err != nil {
			return err
		}
		resp, err := c.Read()
		if err != nil {
			return noResponse(err)
		}
		fmt.Fprintln(out, string(resp))
		return nil
	case status.Name:
		if err := c.SendRaw(id, nil); err != nil {
			return err
		}
		var report status.Report
		if err := c.ReadValue(&report); err != nil {
			return noResponse(err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	label := args0(name, id)
	req, _ := services.ParseText(label, []byte(strings.Join(append([]string{label}, args...), " ")))
	if err := c.Send(id, req); err != nil {
		return err
	}
	var res services.Result
	if err := c.ReadValue(&res); err != nil {
		return noResponse(err)
	}
	fmt.Fprint(out, string(res.Stdout))
	if res.Status != services.StatusOK {
		return fmt.Errorf("%s %s: exit %d: %s", label, req.Action, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

func sendText(ctx context.Context, c *console.Client, text string, out io.Writer) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(deadline)
	}
	if err := c.SendText(text); err != nil {
		return err
	}
	resp, err := c.ReadText()
	if err != nil {
		return noResponse(err)
	}
	fmt.Fprintln(out, resp)
	return nil
}

// noResponse maps a read timeout to a clearer error; an unprocessable
// command is answered with silence.
func noResponse(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.New("no response (command unprocessable or slow)")
	}
	return err
}

func args0(name string, id console.ServiceID) string {
	if name != "" {
		return name
	}
	return id.String()
}
