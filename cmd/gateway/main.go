package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Eotel/go-machinist/internal/buildinfo"
	"github.com/Eotel/go-machinist/internal/config"
	"github.com/Eotel/go-machinist/internal/gateway"
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
	cfg, err := config.LoadGatewayConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	buildinfo.New(buildVersion, buildDate, buildCommit).Log(logger)
	logger.Infof("Gateway config: Addr=%s, APIKeys=%d, MaxMetrics=%d, RateLimit=%.2f, Burst=%d",
		cfg.Addr, len(cfg.APIKeys), cfg.MaxMetrics, cfg.RateLimit, cfg.Burst)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gateway.New(cfg, logger).Run(ctx)
}
