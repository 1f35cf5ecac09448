package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/backendsim"
	"github.com/ternarybob/pipewatch/internal/common"
)

var simulatePort int

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an in-memory backend serving every job kind",
	Long: `Serves the status, start and stop endpoints of every job kind from memory.
Runs advance one unit per step_delay, honour cooperative stops and resume
from their cursor. Kinds listed in [simulator] once_per_day refuse a second
completed run on the same calendar day.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simulatePort, "port", 0, "Simulator port (overrides [simulator] port)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	port := config.Simulator.Port
	if simulatePort > 0 {
		port = simulatePort
	}

	sim := backendsim.New(backendsim.ConfigFromSettings(config.Simulator, logger), logger)
	defer sim.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(config.Server.Host, fmt.Sprint(port)),
		Handler:           sim,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "backend-simulator", func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	})

	logger.Info().
		Str("address", srv.Addr).
		Str("step_delay", config.Simulator.StepDelay).
		Int("total_units", config.Simulator.TotalUnits).
		Strs("once_per_day", config.Simulator.OncePerDay).
		Msg("Backend simulator ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case err := <-serverErr:
		return fmt.Errorf("simulator failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
