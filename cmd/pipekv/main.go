// Package main is the entry point for the pipekv server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gometrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/ASHISH26940/pipekv/internal/config"
	"github.com/ASHISH26940/pipekv/internal/metrics"
	"github.com/ASHISH26940/pipekv/internal/server"
)

const defaultConfigFile = "pipekv.toml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pipekv: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Configuration and Flags ---
	configFile := flag.String("config", defaultConfigFile, "Path to config file")
	address := flag.String("address", "", "Override the endpoint address")
	serial := flag.Bool("serial", false, "Serve one connection at a time")
	logLevel := flag.String("log-level", "", "Override the log level (trace, debug, info, warn, error)")
	flag.Parse()

	cfg := config.New()
	load := cfg.Load
	if *configFile == defaultConfigFile {
		load = cfg.LoadOptional
	}
	if err := load(*configFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *serial {
		cfg.Serial = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "pipekv",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
		Output:     os.Stderr,
	})

	// --- Metrics, dumped to stderr on SIGUSR1 ---
	rec, err := metrics.New("pipekv")
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	sig := gometrics.DefaultInmemSignal(rec.Sink())
	defer sig.Stop()

	// --- Serve until interrupted ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger.Named("server"), rec)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
