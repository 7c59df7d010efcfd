package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tcpconsole/console"
	"github.com/danmuck/tcpconsole/internal/observability"
	"github.com/danmuck/tcpconsole/internal/services"
	"github.com/danmuck/tcpconsole/internal/services/echo"
	"github.com/danmuck/tcpconsole/internal/services/exec"
	"github.com/danmuck/tcpconsole/internal/services/kv"
	"github.com/danmuck/tcpconsole/internal/services/logger"
	"github.com/danmuck/tcpconsole/internal/services/status"
	"github.com/danmuck/tcpconsole/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Well-known service ids of the bundled services.
const (
	serviceEcho   console.ServiceID = 1
	serviceLogger console.ServiceID = 2
	serviceExec   console.ServiceID = 3
	serviceStatus console.ServiceID = 4
	serviceKV     console.ServiceID = 5
)

var serviceIDs = map[string]console.ServiceID{
	echo.Name:   serviceEcho,
	logger.Name: serviceLogger,
	exec.Name:   serviceExec,
	status.Name: serviceStatus,
	kv.Name:     serviceKV,
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host        string
		port        int
		welcome     string
		metricsAddr string
		loopback    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(root.configPath, nil)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Console.Host = host
			}
			if flags.Changed("port") {
				cfg.Console.Port = port
			}
			if flags.Changed("welcome") {
				cfg.Console.Welcome = welcome
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("loopback-only") {
				cfg.Console.LoopbackOnly = loopback
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "bind host")
	flags.IntVar(&port, "port", 0, "bind port (0 picks a free port)")
	flags.StringVar(&welcome, "welcome", "", "greeting sent to every client")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve /health, /metrics and /services on this address")
	flags.BoolVar(&loopback, "loopback-only", true, "accept loopback peers only")
	return cmd
}

func bundledServices(cfg appConfig) ([]console.Binding, *status.Service) {
	statusSvc := status.New(cfg.Node)
	// logger first: it sees every text command before another service takes it
	bindings := []console.Binding{
		console.Bind(serviceLogger, logger.New(log.Logger)),
		console.Bind(serviceEcho, echo.New()),
		console.Bind(serviceStatus, statusSvc),
		console.Bind(serviceKV, services.Adapt(kv.New())),
	}
	if cfg.Exec.Enabled {
		var runner tools.CommandRunner = tools.ExecRunner{}
		if cfg.Exec.SSH != nil {
			runner = *cfg.Exec.SSH
		}
		bindings = append(bindings, console.Bind(serviceExec, services.Adapt(exec.New(runner, cfg.Exec.Timeout, cfg.Exec.Commands...))))
	}
	return bindings, statusSvc
}

// runServe blocks until ctx is done, then stops accepting and gives open
// sessions ShutdownGrace to finish before abandoning them.
func runServe(ctx context.Context, cfg appConfig) error {
	bindings, statusSvc := bundledServices(cfg)
	consoleCfg := cfg.Console
	consoleCfg.Subscriptions = bindings
	logger := log.Logger.With().Str("node", cfg.Node).Logger()
	consoleCfg.Logger = &logger

	srv, err := console.New(consoleCfg)
	if err != nil {
		return err
	}
	h, err := srv.Spawn(context.Background())
	if err != nil {
		return err
	}
	statusSvc.Attach(h, srv.Registry())

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		httpSrv := &http.Server{
			Addr: cfg.MetricsAddr,
			Handler: observability.NewRouter(cfg.Node, observability.Source{
				Services:       func() any { return srv.Registry().Services() },
				ActiveSessions: h.ActiveSessions,
			}, cfg.AllowOrigins...),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("ops endpoint listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		h.Stop()
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := h.Wait(waitCtx); err != nil {
			logger.Warn().Int64("active_sessions", h.ActiveSessions()).Msg("shutdown grace elapsed; abandoning sessions")
			h.Abort()
			return h.Wait(context.Background())
		}
		logger.Info().Msg("console shut down")
		return nil
	})
	return g.Wait()
}
