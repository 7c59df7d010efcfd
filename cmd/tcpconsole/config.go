package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/tcpconsole/console"
	"github.com/danmuck/tcpconsole/internal/services/exec"
	"github.com/danmuck/tcpconsole/internal/tools"
)

const defaultShutdownGrace = 5 * time.Second

type fileConfig struct {
	Node                string         `toml:"node"`
	Host                string         `toml:"host"`
	Port                int            `toml:"port"`
	Welcome             string         `toml:"welcome"`
	Greeting            string         `toml:"greeting"`
	LoopbackOnly        bool           `toml:"loopback_only"`
	ReusePort           bool           `toml:"reuse_port"`
	MaxFrameSize        uint32         `toml:"max_frame_size"`
	IdleTimeout         string         `toml:"idle_timeout"`
	WriteTimeout        string         `toml:"write_timeout"`
	ShutdownGrace       string         `toml:"shutdown_grace"`
	ReportUnprocessable bool           `toml:"report_unprocessable"`
	MetricsAddr         string         `toml:"metrics_addr"`
	AllowOrigins        []string       `toml:"allow_origins"`
	Exec                execFileConfig `toml:"exec"`
}

type execFileConfig struct {
	Enabled  bool                `toml:"enabled"`
	Timeout  string              `toml:"timeout"`
	Commands map[string][]string `toml:"commands"`
	SSH      sshFileConfig       `toml:"ssh"`
}

type sshFileConfig struct {
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

type envConfig struct {
	Node         string `env:"TCPCONSOLE_NODE"`
	Port         *int   `env:"TCPCONSOLE_PORT"`
	Welcome      string `env:"TCPCONSOLE_WELCOME"`
	LoopbackOnly *bool  `env:"TCPCONSOLE_LOOPBACK_ONLY"`
	MetricsAddr  string `env:"TCPCONSOLE_METRICS_ADDR"`
}

type execConfig struct {
	Enabled  bool
	Timeout  time.Duration
	Commands []exec.Command
	SSH      *tools.SSHRunner
}

type appConfig struct {
	Node          string
	Console       console.Config
	ShutdownGrace time.Duration
	MetricsAddr   string
	AllowOrigins  []string
	Exec          execConfig
}

func defaultAppConfig() appConfig {
	return appConfig{
		Node: "tcpconsole",
		Console: console.Config{
			Host:         "127.0.0.1",
			Port:         7000,
			Welcome:      "tcpconsole ready",
			LoopbackOnly: true,
		},
		ShutdownGrace: defaultShutdownGrace,
		Exec: execConfig{
			Enabled:  true,
			Timeout:  exec.DefaultTimeout,
			Commands: exec.DefaultCommands(),
		},
	}
}

// loadAppConfig layers defaults, the optional TOML file and the environment.
func loadAppConfig(path string, environ map[string]string) (appConfig, error) {
	cfg := defaultAppConfig()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func applyFile(cfg *appConfig, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load tcpconsole config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load tcpconsole config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("node") {
		if node := strings.TrimSpace(raw.Node); node != "" {
			cfg.Node = node
		}
	}
	if meta.IsDefined("host") {
		cfg.Console.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Console.Port = raw.Port
	}
	if meta.IsDefined("welcome") {
		cfg.Console.Welcome = raw.Welcome
	}
	if meta.IsDefined("greeting") {
		mode, err := parseGreeting(raw.Greeting)
		if err != nil {
			return err
		}
		cfg.Console.Greeting = mode
	}
	if meta.IsDefined("loopback_only") {
		cfg.Console.LoopbackOnly = raw.LoopbackOnly
	}
	if meta.IsDefined("reuse_port") {
		cfg.Console.ReusePort = raw.ReusePort
	}
	if meta.IsDefined("max_frame_size") {
		cfg.Console.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("idle_timeout") {
		d, err := parseDuration("idle_timeout", raw.IdleTimeout)
		if err != nil {
			return err
		}
		cfg.Console.IdleTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return err
		}
		cfg.Console.WriteTimeout = d
	}
	if meta.IsDefined("shutdown_grace") {
		d, err := parseDuration("shutdown_grace", raw.ShutdownGrace)
		if err != nil {
			return err
		}
		cfg.ShutdownGrace = d
	}
	if meta.IsDefined("report_unprocessable") {
		cfg.Console.ReportUnprocessable = raw.ReportUnprocessable
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("allow_origins") {
		cfg.AllowOrigins = normalizeList(raw.AllowOrigins)
	}

	if meta.IsDefined("exec", "enabled") {
		cfg.Exec.Enabled = raw.Exec.Enabled
	}
	if meta.IsDefined("exec", "timeout") {
		d, err := parseDuration("exec.timeout", raw.Exec.Timeout)
		if err != nil {
			return err
		}
		cfg.Exec.Timeout = d
	}
	if meta.IsDefined("exec", "commands") {
		cfg.Exec.Commands = execCommands(raw.Exec.Commands)
	}
	if meta.IsDefined("exec", "ssh", "host") {
		runner, err := sshRunner(raw.Exec.SSH)
		if err != nil {
			return err
		}
		cfg.Exec.SSH = runner
	}
	return nil
}

func applyEnv(cfg *appConfig, environ map[string]string) error {
	var raw envConfig
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if v := strings.TrimSpace(raw.Node); v != "" {
		cfg.Node = v
	}
	if raw.Port != nil {
		cfg.Console.Port = *raw.Port
	}
	if raw.Welcome != "" {
		cfg.Console.Welcome = raw.Welcome
	}
	if raw.LoopbackOnly != nil {
		cfg.Console.LoopbackOnly = *raw.LoopbackOnly
	}
	if v := strings.TrimSpace(raw.MetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

func parseGreeting(raw string) (console.GreetingMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "framed":
		return console.GreetingFramed, nil
	case "bare":
		return console.GreetingBare, nil
	default:
		return 0, fmt.Errorf("parse greeting: unknown mode %q", raw)
	}
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", field, d)
	}
	return d, nil
}

func execCommands(in map[string][]string) []exec.Command {
	actions := make([]string, 0, len(in))
	for action := range in {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	out := make([]exec.Command, 0, len(in))
	for _, action := range actions {
		argv := normalizeList(in[action])
		if len(argv) == 0 {
			continue
		}
		out = append(out, exec.Command{Action: action, Argv: argv})
	}
	return out
}

func sshRunner(raw sshFileConfig) (*tools.SSHRunner, error) {
	runner := &tools.SSHRunner{
		Host:                        strings.TrimSpace(raw.Host),
		Port:                        strings.TrimSpace(raw.Port),
		User:                        strings.TrimSpace(raw.User),
		KeyPath:                     expandHome(strings.TrimSpace(raw.KeyPath)),
		KnownHostsPath:              expandHome(strings.TrimSpace(raw.KnownHostsPath)),
		InsecureSkipHostKeyChecking: raw.InsecureSkipHostKeyChecking,
	}
	if raw.Timeout != "" {
		d, err := parseDuration("exec.ssh.timeout", raw.Timeout)
		if err != nil {
			return nil, err
		}
		runner.Timeout = d
	}
	if runner.Host == "" || runner.User == "" || runner.KeyPath == "" {
		return nil, fmt.Errorf("exec.ssh: host, user and key_path are required")
	}
	return runner, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
