package main

import (
	"fmt"

	"github.com/danmuck/tcpconsole/internal/logging"
	"github.com/danmuck/tcpconsole/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tcpconsole",
		Short: "TCP command-and-control console",
		Long: `tcpconsole hosts a framed TCP console and talks to one.

Built-in services:
  1 echo    - echoes typed payloads and "echo <words>"
  2 logger  - logs every command, never answers
  3 exec    - runs whitelisted host commands
  4 status  - uptime and active sessions, text "status"
  5 kv      - in-memory key-value store`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			if cmd.Flags().Changed("log-level") {
				level, ok := logging.ParseLevel(opts.logLevel)
				if !ok {
					return fmt.Errorf("unknown log level %q", opts.logLevel)
				}
				zerolog.SetGlobalLevel(level)
			}
			observability.InitLogger("tcpconsole")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts), newSendCmd(opts), newTextCmd(opts))
	return root
}
