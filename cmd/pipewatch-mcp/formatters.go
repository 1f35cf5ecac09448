package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/view"
)

// formatJobList formats every job as a markdown table
func formatJobList(views []monitor.View) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jobs (%d)\n\n", len(views)))
	sb.WriteString("| Kind | Title | Phase | Progress | Actions |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	for _, v := range views {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d%% | %s |\n",
			v.Kind, v.Title, v.Phase, v.Percent, strings.Join(actions(v), ", ")))
	}

	return sb.String()
}

// formatJobView formats a single job as markdown
func formatJobView(v monitor.View) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s (%s)\n\n", v.Title, v.Kind))
	sb.WriteString(fmt.Sprintf("**Phase:** %s (%s)\n", v.Phase, v.Label))
	sb.WriteString(fmt.Sprintf("**Progress:** %d%% (%d/%d %s)\n", v.Percent, v.Processed, v.Total, v.UnitLabel))
	if v.Produced > 0 {
		sb.WriteString(fmt.Sprintf("**Produced:** %d %s\n", v.Produced, v.ProducedLabel))
	}
	if v.CurrentUnit != "" {
		sb.WriteString(fmt.Sprintf("**Current:** %s\n", v.CurrentUnit))
	}
	if v.StartedAt != nil {
		sb.WriteString(fmt.Sprintf("**Started:** %s\n", v.StartedAt.Format(time.RFC3339)))
	}
	if v.EndedAt != nil {
		sb.WriteString(fmt.Sprintf("**Ended:** %s\n", v.EndedAt.Format(time.RFC3339)))
	}
	if v.ElapsedSeconds > 0 {
		sb.WriteString(fmt.Sprintf("**Elapsed:** %s\n", v.Elapsed()))
	}
	if v.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", v.ErrorMessage))
	}
	if v.MonitoringError != "" {
		sb.WriteString(fmt.Sprintf("**Monitoring problem:** %s (showing the last known status)\n", v.MonitoringError))
	}
	sb.WriteString(fmt.Sprintf("**Available actions:** %s\n", strings.Join(actions(v), ", ")))

	return sb.String()
}

// formatResult formats a pressed control's outcome as markdown
func formatResult(result *view.Result) string {
	var sb strings.Builder
	status := "accepted"
	if !result.Accepted {
		status = "refused"
	}
	sb.WriteString(fmt.Sprintf("## %s: %s\n\n", result.Action, status))
	if result.Outcome != "" {
		sb.WriteString(fmt.Sprintf("**Outcome:** %s\n", result.Outcome))
	}
	if result.Message != "" {
		sb.WriteString(fmt.Sprintf("**Message:** %s\n", result.Message))
	}
	sb.WriteString("\n")
	sb.WriteString(formatJobView(result.View))
	return sb.String()
}

func actions(v monitor.View) []string {
	var out []string
	for _, c := range view.ComputeControls(v) {
		if c.Available() {
			out = append(out, string(c.Action))
		}
	}
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}
