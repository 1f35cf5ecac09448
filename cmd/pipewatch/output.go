package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/pipewatch/internal/jobclient"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/view"
)

// errRefused reports a start the backend declined
var errRefused = errors.New("start refused")

// Exit codes
const (
	exitFailure     = 1
	exitUnknownKind = 2
	exitDenied      = 3
	exitUnreachable = 4
	exitRefused     = 5
	exitUnavailable = 6
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownKind):
		return exitUnknownKind
	case errors.Is(err, monitor.ErrCapabilityDenied):
		return exitDenied
	case errors.Is(err, jobclient.ErrCommunication):
		return exitUnreachable
	case errors.Is(err, errRefused):
		return exitRefused
	case errors.Is(err, view.ErrControlUnavailable), errors.Is(err, monitor.ErrCommandInFlight):
		return exitUnavailable
	default:
		return exitFailure
	}
}

// writeOutput renders value as json or yaml, or calls text for the text format
func writeOutput(w io.Writer, format string, value interface{}, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(value)
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// availableActions lists the controls that can be pressed for v
func availableActions(v monitor.View) []string {
	var out []string
	for _, c := range view.ComputeControls(v) {
		if c.Available() {
			out = append(out, string(c.Action))
		}
	}
	return out
}
