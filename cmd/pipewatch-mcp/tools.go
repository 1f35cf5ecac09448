package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

const kindDescription = "Job kind: news, fund-news, reports, dipa-funds, profile-changes, embeddings, datamart"

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List every monitored job kind with its phase, progress and the controls that can be pressed"),
	)
}

// createGetJobStatusTool returns the get_job_status tool definition
func createGetJobStatusTool() mcp.Tool {
	return mcp.NewTool("get_job_status",
		mcp.WithDescription("Read the current status of one job kind from the backend"),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description(kindDescription),
		),
	)
}

// createStartJobTool returns the start_job tool definition
func createStartJobTool() mcp.Tool {
	return mcp.NewTool("start_job",
		mcp.WithDescription("Start a job. A stopped run can be resumed from its cursor; only some kinds allow a fresh restart while a resumable run exists."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description(kindDescription),
		),
		mcp.WithBoolean("resume",
			mcp.Description("Resume the stopped run instead of starting from the beginning (default: false)"),
		),
	)
}

// createStopJobTool returns the stop_job tool definition
func createStopJobTool() mcp.Tool {
	return mcp.NewTool("stop_job",
		mcp.WithDescription("Request cooperative cancellation of a running job. The job stops after its current unit."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description(kindDescription),
		),
	)
}
