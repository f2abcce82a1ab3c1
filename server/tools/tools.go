package tools

import (
	mcp "github.com/metoro-io/mcp-golang"
)

// Auditor is everything the registered tools need.
type Auditor interface {
	FeedChecker
	DocumentValidator
}

// RegisterAllTools - Register all tools with the server
func RegisterAllTools(mcpServer *mcp.Server, a Auditor) error {
	if err := RegisterCheckFeedTool(mcpServer, a); err != nil {
		return err
	}
	if err := RegisterValidateFeedXMLTool(mcpServer, a); err != nil {
		return err
	}
	return nil
}
