// Package mcp exposes script inspection and execution as Model Context
// Protocol tools.
package mcp

import (
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
)

// Handlers carries what the tools need. Scripts is optional; without it
// tools accept inline content only.
type Handlers struct {
	Engine  *runtime.Engine
	Scripts *scripts.Store
}

// NewServer creates an MCP server with all commander tools registered.
func NewServer(version string, h *Handlers) (*server.MCPServer, error) {
	if h == nil || h.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}
	s := server.NewMCPServer(
		"gcloud-commander",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("commander/parameters",
		mcp.WithDescription("List the parameters a script prompts for or passes as flags"),
		mcp.WithString("content", mcp.Description("Script text")),
		mcp.WithString("key", mcp.Description("Key of a stored script, used when content is empty")),
	), h.HandleParameters)

	s.AddTool(mcp.NewTool("commander/run",
		mcp.WithDescription("Run a script and return its step events"),
		mcp.WithString("content", mcp.Description("Script text")),
		mcp.WithString("key", mcp.Description("Key of a stored script, used when content is empty")),
		mcp.WithObject("vars", mcp.Description("Parameter values keyed by parameter name")),
	), h.HandleRun)

	s.AddTool(mcp.NewTool("commander/flow",
		mcp.WithDescription("Render the step flow of a script"),
		mcp.WithString("content", mcp.Description("Script text")),
		mcp.WithString("key", mcp.Description("Key of a stored script, used when content is empty")),
		mcp.WithString("name", mcp.Description("Title shown in the diagram header")),
		mcp.WithString("format", mcp.Description("mermaid (default) or ascii")),
	), h.HandleFlow)

	if h.Scripts != nil {
		s.AddTool(mcp.NewTool("commander/scripts",
			mcp.WithDescription("List stored scripts"),
		), h.HandleScripts)
	}
	return s, nil
}
