// Command connpool opens the connection pools of a settings file.
//
// Usage:
//
//	connpool <command> [-config path]
//
// Commands:
//
//	check    Open every configured pool, print its size line and close it
//	serve    Open every configured pool and serve health, stats and metrics
//	setup    Create the chat schema through one pool (-pool name)
//
// The settings file is the -config flag, else $CONNPOOL_CONFIG, else
// product_setting.yaml when $IS_PRODUCTION is a non-zero integer, else
// develop_setting.yaml. Pool credentials can be overridden with
// CONNPOOL_<POOL>_HOST, _USER, _PASSWORD, _DATABASE and _DSN.
//
// Example:
//
//	CONNPOOL_CORGI_PASSWORD=secret connpool check -config settings.yaml
//	connpool serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/yuku/connpool"
	"github.com/yuku/connpool/internal/chatroom"
	"github.com/yuku/connpool/internal/config"
	"github.com/yuku/connpool/internal/logging"
	"github.com/yuku/connpool/internal/metrics"
	"github.com/yuku/connpool/internal/registry"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [-config path]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  check    Open every configured pool and print its size\n")
	fmt.Fprintf(os.Stderr, "  serve    Serve /healthz, /pools and /metrics\n")
	fmt.Fprintf(os.Stderr, "  setup    Create the chat schema (-pool name)\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "settings file")
	poolName := fs.String("pool", "", "pool used by setup")
	_ = fs.Parse(os.Args[2:])

	var run func(ctx context.Context, env *environment) error
	switch command {
	case "check":
		run = runCheck
	case "serve":
		run = runServe
	case "setup":
		run = func(ctx context.Context, env *environment) error {
			return runSetup(ctx, env, *poolName)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = run(ctx, env)
	if err != nil {
		env.logger.Error("command failed", zap.String("command", command), zap.Error(err))
	}
	env.close()
	if err != nil {
		os.Exit(1)
	}
}

// environment is the state shared by every command.
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
}

func newEnvironment(configPath string) (*environment, error) {
	path := config.SettingsPath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logger.Info("settings loaded", zap.String("path", path), zap.Int("pools", len(cfg.Pools)))
	return &environment{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(registry.WithLogger(logger)),
	}, nil
}

func (e *environment) close() {
	e.registry.Close()
	_ = e.logger.Sync()
}

// openPools opens every configured pool, stopping at the first failure.
func (e *environment) openPools(ctx context.Context) error {
	if len(e.cfg.Pools) == 0 {
		return errors.New("no pools configured")
	}
	for _, pc := range e.cfg.Pools {
		if _, err := connpool.Open(ctx, pc, connpool.WithRegistry(e.registry), connpool.WithLogger(e.logger)); err != nil {
			return fmt.Errorf("failed to open pool %s: %w", pc.Name, err)
		}
	}
	return nil
}

func runCheck(ctx context.Context, env *environment) error {
	if err := env.openPools(ctx); err != nil {
		return err
	}
	for _, p := range env.registry.Pools() {
		fmt.Printf("%s %s\n", p.Name(), p)
	}
	return nil
}

func runSetup(ctx context.Context, env *environment, name string) error {
	if name == "" {
		return errors.New("setup requires -pool")
	}
	pc, ok := env.cfg.Pool(name)
	if !ok {
		return fmt.Errorf("pool %s is not configured", name)
	}
	p, err := connpool.Open(ctx, pc, connpool.WithRegistry(env.registry), connpool.WithLogger(env.logger))
	if err != nil {
		return err
	}
	if err := chatroom.Setup(ctx, p); err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	fmt.Println("Setup completed successfully")
	return nil
}

func runServe(ctx context.Context, env *environment) error {
	if err := env.openPools(ctx); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector("connpool", env.registry, env.logger),
	)

	server := &http.Server{
		Addr:    env.cfg.Server.ListenAddr,
		Handler: newRouter(env.registry, promRegistry, env.logger),
	}

	errs := make(chan error, 1)
	go func() {
		env.logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	env.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), env.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}
