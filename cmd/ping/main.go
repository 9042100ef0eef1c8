package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tkjaer/ping/internal/config"
	"github.com/tkjaer/ping/internal/probe"
	"github.com/tkjaer/ping/pkg/transport"
)

type prober interface {
	Run(ctx context.Context) error
	Stop()
}

var newProbeManager = func(args config.Args) (prober, error) {
	return probe.NewProbeManager(args)
}

func main() {
	os.Exit(run())
}

func run() int {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'ping --help' for usage.")
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			return 2
		}
		return 1
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Debug("Starting ping",
		"destination", args.Destination,
		"count", args.Count,
		"interval", args.Interval,
		"timeout", args.Timeout,
	)

	pm, err := newProbeManager(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, transport.ErrPermissionDenied) {
			fmt.Fprintln(os.Stderr, "Raw ICMP sockets need root or CAP_NET_RAW; try running with sudo.")
		}
		return 1
	}
	defer pm.Stop()

	// Set up signal handling for Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Run in a goroutine so we can handle signals
	done := make(chan error, 1)
	go func() {
		done <- pm.Run(context.Background())
	}()

	// Wait for either completion or interrupt
	select {
	case err = <-done:
	case <-sigChan:
		slog.Debug("Received interrupt signal, stopping...")
		pm.Stop()
		// Wait for Run() to finish draining
		err = <-done
	}
	if err != nil {
		slog.Error("Probe manager error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	slog.Debug("Ping completed")
	return 0
}
