// Package main is the entry point for the ircclaw bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/ircclaw/pkg/bot"
	"github.com/sipeed/ircclaw/pkg/config"
	"github.com/sipeed/ircclaw/pkg/console"
	"github.com/sipeed/ircclaw/pkg/logger"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "ircclaw.yaml", "path to the configuration file")
		withConsole = flag.Bool("console", false, "attach an interactive console to the running bot")
		logLevel    = flag.String("log-level", "", "override the configured log level")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ircclaw - event-driven IRC bot\n\n")
		fmt.Fprintf(os.Stderr, "Usage: ircclaw [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("ircclaw %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger.Init(cfg.LogLevel, logger.Format(cfg.LogFormat))

	b, err := bot.New(cfg, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	if *withConsole {
		g.Go(func() error {
			// Leaving the console shuts the whole bot down.
			defer stop()
			return console.New(b).Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
