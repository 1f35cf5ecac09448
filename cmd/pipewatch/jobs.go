package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/app"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/view"
)

var (
	outputFormat string
	startFresh   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [kind|all]",
	Short: "Show the status of one or every job kind",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start <kind>",
	Short: "Start a job, resuming a stopped run unless --fresh is given",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := view.ActionStart
		if startFresh {
			action = view.ActionFresh
		}
		return runPress(cmd, args[0], action)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <kind>",
	Short: "Resume a stopped job from the backend's cursor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPress(cmd, args[0], view.ActionResume)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <kind>",
	Short: "Request cooperative cancellation of a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPress(cmd, args[0], view.ActionStop)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, startCmd, resumeCmd, stopCmd} {
		cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")
	}
	startCmd.Flags().BoolVar(&startFresh, "fresh", false, "Start from the beginning even when a resumable run exists")
}

// commandContext is cancelled on Ctrl+C
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// newRegistry builds a registry for a one-shot command. Notices are printed
// to stderr.
func newRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	return app.NewRegistry(config, logger, nil, registry.WithNotifier(newConsoleNotifier(cmd.ErrOrStderr())))
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	reg, err := newRegistry(cmd)
	if err != nil {
		return err
	}
	defer reg.Close()

	var views []monitor.View
	if len(args) == 0 || args[0] == "all" {
		// A failing kind still gets a row; its monitoring error is shown
		if err := reg.MountAll(ctx); err != nil {
			logger.Warn().Err(err).Msg("Some kinds could not be read")
		}
		views = reg.Views()
	} else {
		entry, err := reg.Lookup(args[0])
		if err != nil {
			return err
		}
		if err := entry.Monitor.Mount(ctx); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		views = []monitor.View{entry.Binding.View()}
	}

	return writeOutput(cmd.OutOrStdout(), outputFormat, views, func(w io.Writer) {
		for _, v := range views {
			fmt.Fprintln(w, view.RenderLine(v))
			if actions := availableActions(v); len(actions) > 0 {
				fmt.Fprintf(w, "    actions: %s\n", strings.Join(actions, ", "))
			}
		}
	})
}

// runPress mounts kind and presses action once. The command returns after
// the backend answered; it does not follow the run (see watch).
func runPress(cmd *cobra.Command, kind string, action view.Action) error {
	ctx, cancel := commandContext()
	defer cancel()

	reg, err := newRegistry(cmd)
	if err != nil {
		return err
	}
	defer reg.Close()

	entry, err := reg.Lookup(kind)
	if err != nil {
		return err
	}
	if err := entry.Monitor.Mount(ctx); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	// "start" on a resumable run is offered as resume
	if action == view.ActionStart && !entry.Binding.Controls().Get(view.ActionStart).Visible {
		if entry.Binding.Controls().Get(view.ActionResume).Visible {
			action = view.ActionResume
		}
	}

	result, err := entry.Binding.Press(ctx, action)
	if err != nil {
		return err
	}

	if err := writeOutput(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: %s\n", kind, result.Action, resultLabel(result))
		fmt.Fprintln(w, view.RenderLine(result.View))
	}); err != nil {
		return err
	}

	if !result.Accepted {
		return fmt.Errorf("%s: %w: %s", kind, errRefused, result.Message)
	}
	return nil
}

func resultLabel(result *view.Result) string {
	label := "accepted"
	if !result.Accepted {
		label = "refused"
		if result.Outcome != "" {
			label += " (" + string(result.Outcome) + ")"
		}
	}
	if result.Message != "" {
		label += " - " + result.Message
	}
	return label
}

// consoleNotifier prints notices as they are raised
type consoleNotifier struct {
	out io.Writer
}

func newConsoleNotifier(out io.Writer) *consoleNotifier {
	return &consoleNotifier{out: out}
}

func (n *consoleNotifier) Notify(_ context.Context, notice models.Notice) {
	ts := notice.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(n.out, "%s %-7s [%s] %s\n", ts.Format("15:04:05"), strings.ToUpper(string(notice.Level)), notice.Kind, notice.Message)
}
