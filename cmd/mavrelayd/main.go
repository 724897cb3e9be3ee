package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"mavrelay/pkg/bridge/wsview"
	"mavrelay/pkg/config"
	"mavrelay/pkg/logging"
	"mavrelay/pkg/router"
	"mavrelay/pkg/subscription"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return runDaemon([]string{}, stdout, stderr)
	}

	switch args[0] {
	case "daemon", "run":
		return runDaemon(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runDaemon(args []string, _ io.Writer, stderr io.Writer) int {
	configPath := config.DefaultConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, _, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}

	log, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(stderr, "init logging:", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	dialect, err := config.ResolveDialect(cfg.Router.Dialect)
	if err != nil {
		log.Error("resolve dialect", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := router.Start(ctx, router.Config{
		Dialect:            dialect,
		System:             cfg.Router.System,
		Component:          cfg.Router.Component,
		Transports:         cfg.TransportSpecs(),
		EchoLocalBroadcast: &cfg.Router.EchoLocalBroadcast,
		SubscriptionCache:  subscription.NewCache(),
		Logger:             log,
	})
	if err != nil {
		log.Error("start router", zap.Error(err))
		return 1
	}

	if cfg.Bridge.WSView.Enabled {
		bridge := wsview.NewServer(wsview.Config{Addr: cfg.Bridge.WSView.Addr}, r, log)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Error("wsview bridge exited", zap.Error(err))
			}
		}()
	}

	log.Info("mavrelayd started",
		zap.Uint8("system", cfg.Router.System),
		zap.Uint8("component", cfg.Router.Component),
		zap.Strings("transports", cfg.TransportSpecs()),
	)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		log.Error("stop router", zap.Error(err))
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mavrelayd [daemon|run] [config.toml]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon   start the router daemon (default)")
}
