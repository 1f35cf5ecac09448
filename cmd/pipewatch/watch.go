package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/view"
)

var watchStart bool

var watchCmd = &cobra.Command{
	Use:   "watch <kind>",
	Short: "Follow a job's progress until it reaches a terminal state",
	Long: `Mounts the job and prints a progress line on every change. Exits when the
run ends or on Ctrl+C; the backend job keeps running in the latter case.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchStart, "start", false, "Start or resume the job before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	reg, err := newRegistry(cmd)
	if err != nil {
		return err
	}
	// Tears the monitor down: the timer is cancelled and late answers are ignored
	defer reg.Close()

	entry, err := reg.Lookup(args[0])
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	entry.Monitor.OnChange(func(monitor.View) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := entry.Monitor.Mount(ctx); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if watchStart {
		if _, err := entry.Binding.StartOrResume(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	var lastRev uint64
	for {
		v := entry.Binding.View()
		if v.Revision != lastRev {
			lastRev = v.Revision
			fmt.Fprintln(out, view.RenderLine(v))
		}
		if !v.IsPolling && !v.IsSubmitting && v.Phase != monitor.PhaseActive {
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "watch interrupted; the job keeps running on the backend")
			return nil
		case <-changed:
		}
	}
}
