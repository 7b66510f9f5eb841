package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Eotel/go-machinist/internal/agent"
	"github.com/Eotel/go-machinist/internal/buildinfo"
	"github.com/Eotel/go-machinist/internal/config"
	"github.com/Eotel/go-machinist/storage/inmemory"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadAgentConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	buildinfo.New(buildVersion, buildDate, buildCommit).Log(logger)
	logger.Infof("Agent config: URL=%s, Agent=%s, ReportInterval=%d, PollInterval=%d, Once=%t",
		cfg.URL, cfg.AgentName, cfg.ReportInterval, cfg.PollInterval, cfg.Once)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := agent.New(cfg, inmemory.NewMemStorage(), logger)
	if cfg.Once {
		a.Poll(ctx)
		code, err := a.ReportOnce(ctx)
		if err != nil {
			return err
		}
		logger.Infof("report finished with status %d", code)
		return nil
	}
	return a.Run(ctx)
}
