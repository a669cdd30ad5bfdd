// Package bridge exposes peer commands as MCP tools.
//
// On startup the bridge asks the peer for its command list and registers one
// tool per command. When the peer cannot be reached it registers a single
// status tool instead, so the server still starts and tells the user what to
// do. Tool handlers never return Go errors; every failure becomes tool text.
package bridge

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/logger"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

// CommandClient is the part of the IPC client the bridge needs.
// *ipc.Client satisfies it.
type CommandClient interface {
	ListCommands(ctx context.Context) ([]string, error)
	ExecuteCommand(ctx context.Context, commandID string, args []any, projectPath string) (any, error)
}

// ToolRegistrar accepts tool registrations. *server.MCPServer satisfies it.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Outcome tells which kind of tool set was registered.
type Outcome int

const (
	// OutcomeTools means discovery succeeded and one tool per command was
	// registered (possibly none, when the peer has no commands).
	OutcomeTools Outcome = iota
	// OutcomeDiagnostic means discovery failed and only the status tool was
	// registered.
	OutcomeDiagnostic
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTools:
		return "tools"
	case OutcomeDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// RegisteredTool pairs a tool name with the command it runs.
type RegisteredTool struct {
	Name      string
	CommandID string
}

// Registration describes what Register did.
type Registration struct {
	Outcome Outcome
	Tools   []RegisteredTool
	// Skipped lists commands dropped because their tool name was taken.
	Skipped []RegisteredTool
	// DiscoveryErr is the listCommands failure for OutcomeDiagnostic.
	DiscoveryErr error
}

// Bridge registers peer commands as MCP tools.
type Bridge struct {
	client     CommandClient
	compressor *toolname.Compressor
	log        *slog.Logger
}

// Option is a functional option for configuring Bridge
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// WithCompressor replaces the tool name compressor.
func WithCompressor(c *toolname.Compressor) Option {
	return func(b *Bridge) {
		if c != nil {
			b.compressor = c
		}
	}
}

// New creates a bridge over client.
func New(client CommandClient, opts ...Option) *Bridge {
	b := &Bridge{
		client:     client,
		compressor: toolname.Default(),
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register discovers peer commands and registers tools on r. It never fails:
// a discovery error is reported through the returned Registration.
func (b *Bridge) Register(ctx context.Context, r ToolRegistrar) Registration {
	commandIDs, err := b.client.ListCommands(ctx)
	if err != nil {
		b.log.Warn("command discovery failed, registering status tool only",
			"error", err,
			"hint", "enable the 1c-platform-tools extension and the 1c-platform-tools.ipc.enabled setting")
		r.AddTool(statusTool(), handleStatus)
		return Registration{
			Outcome:      OutcomeDiagnostic,
			Tools:        []RegisteredTool{{Name: StatusToolName}},
			DiscoveryErr: err,
		}
	}

	reg := Registration{Outcome: OutcomeTools, Tools: make([]RegisteredTool, 0, len(commandIDs))}
	owners := make(map[string]string, len(commandIDs))
	for _, commandID := range commandIDs {
		name := b.compressor.Compress(commandID)
		if owner, taken := owners[name]; taken {
			b.log.Warn("tool name collision, skipping command",
				"tool", name, "command", commandID, "registeredCommand", owner)
			reg.Skipped = append(reg.Skipped, RegisteredTool{Name: name, CommandID: commandID})
			continue
		}
		owners[name] = commandID

		r.AddTool(commandTool(name, commandID), b.commandHandler(commandID))
		reg.Tools = append(reg.Tools, RegisteredTool{Name: name, CommandID: commandID})
		b.log.Debug("registered tool", "tool", name, "command", commandID)
	}

	if len(reg.Tools) > 0 {
		b.log.Info("registered tools", "count", len(reg.Tools))
	} else {
		b.log.Warn("peer reported no commands, no tools registered")
	}
	return reg
}
