package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/pipewatch/internal/app"
	"github.com/ternarybob/pipewatch/internal/common"
)

func main() {
	// Load configuration
	configPath := os.Getenv("PIPEWATCH_CONFIG")

	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	} else if _, err := os.Stat("pipewatch.toml"); err == nil {
		paths = append(paths, "pipewatch.toml")
	}

	config, err := common.LoadFromFiles(paths...)
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	reg, err := app.NewRegistry(config, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize job registry")
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reg.MountAll(ctx); err != nil {
		logger.Warn().Err(err).Msg("Some job kinds could not be read at startup")
	}
	cancel()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"pipewatch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register job tools
	mcpServer.AddTool(createListJobsTool(), handleListJobs(reg, logger))
	mcpServer.AddTool(createGetJobStatusTool(), handleGetJobStatus(reg, logger))
	mcpServer.AddTool(createStartJobTool(), handleStartJob(reg, logger))
	mcpServer.AddTool(createStopJobTool(), handleStopJob(reg, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
