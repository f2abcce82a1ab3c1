package server

import (
	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/app"
	"github.com/cnosuke/feed-audit/config"
	"github.com/cnosuke/feed-audit/server/tools"
)

// Run - Execute the MCP server
func Run(cfg *config.Config, name string, version string, revision string) error {
	zap.S().Infow("starting MCP feed audit server")

	// Format version string with revision if available
	versionString := version
	if revision != "" && revision != "xxx" {
		versionString = versionString + " (" + revision + ")"
	}

	zap.S().Debugw("creating audit pipeline")
	a, err := app.New(cfg)
	if err != nil {
		zap.S().Errorw("failed to create audit pipeline", "error", err)
		return err
	}

	zap.S().Debugw("creating MCP server",
		"name", name,
		"version", versionString,
	)
	mcpServer := mcp.NewServer(stdio.NewStdioServerTransport())

	zap.S().Debugw("registering tools")
	if err := tools.RegisterAllTools(mcpServer, a); err != nil {
		zap.S().Errorw("failed to register tools", "error", err)
		return err
	}

	// Start the server with stdio transport
	zap.S().Infow("starting MCP server")
	if err := mcpServer.Serve(); err != nil {
		zap.S().Errorw("failed to start server", "error", err)
		return errors.Wrap(err, "failed to start server")
	}

	// Serve returns once the transport is listening; block until the process is stopped.
	done := make(chan struct{})
	<-done
	return nil
}
