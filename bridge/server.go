package bridge

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

// NewServer creates the MCP server that announces itself as
// toolname.ServerName. The tool list is fixed after startup.
func NewServer(version string) *server.MCPServer {
	return server.NewMCPServer(
		toolname.ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
}

// Setup creates the server and registers the bridge's tools on it.
func (b *Bridge) Setup(ctx context.Context, version string) (*server.MCPServer, Registration) {
	s := NewServer(version)
	return s, b.Register(ctx, s)
}
