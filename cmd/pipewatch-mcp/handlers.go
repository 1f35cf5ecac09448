package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/view"
)

// handleListJobs implements the list_jobs tool
func handleListJobs(reg *registry.Registry, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(formatJobList(reg.Views())), nil
	}
}

// handleGetJobStatus implements the get_job_status tool
func handleGetJobStatus(reg *registry.Registry, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := request.RequireString("kind")
		if err != nil || kind == "" {
			return mcp.NewToolResultError("kind parameter is required"), nil
		}

		entry, err := reg.Lookup(kind)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if _, err := entry.Binding.Press(ctx, view.ActionRefresh); err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("Status refresh failed")
			// The last known view is still reported, marked with the monitoring error
		}

		return mcp.NewToolResultText(formatJobView(entry.Binding.View())), nil
	}
}

// handleStartJob implements the start_job tool
func handleStartJob(reg *registry.Registry, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := request.RequireString("kind")
		if err != nil || kind == "" {
			return mcp.NewToolResultError("kind parameter is required"), nil
		}

		entry, err := reg.Lookup(kind)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		action := view.ActionStart
		if request.GetBool("resume", false) {
			action = view.ActionResume
		} else if !entry.Binding.Controls().Get(view.ActionStart).Visible {
			// A resumable run hides start; a fresh restart is the only non-resume start
			action = view.ActionFresh
		}

		result, err := entry.Binding.Press(ctx, action)
		if err != nil {
			logger.Warn().Err(err).Str("kind", kind).Str("action", string(action)).Msg("Start job failed")
			return mcp.NewToolResultError(fmt.Sprintf("%s %s failed: %v", kind, action, err)), nil
		}

		return mcp.NewToolResultText(formatResult(result)), nil
	}
}

// handleStopJob implements the stop_job tool
func handleStopJob(reg *registry.Registry, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := request.RequireString("kind")
		if err != nil || kind == "" {
			return mcp.NewToolResultError("kind parameter is required"), nil
		}

		entry, err := reg.Lookup(kind)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := entry.Binding.Press(ctx, view.ActionStop)
		if err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("Stop job failed")
			return mcp.NewToolResultError(fmt.Sprintf("%s stop failed: %v", kind, err)), nil
		}

		return mcp.NewToolResultText(formatResult(result)), nil
	}
}
