package bridge

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/result"
)

// Tool names and texts
const (
	// StatusToolName is the only tool registered when discovery fails.
	StatusToolName = "onec_platform_tools_status"
	// StatusText is what the status tool returns.
	StatusText = "Расширение 1c-platform-tools недоступно по IPC. Откройте VS Code с проектом 1С и включите настройку 1c-platform-tools.ipc.enabled."
	// EmptyProjectPathText is returned when projectPath is missing or empty.
	EmptyProjectPathText = "projectPath не должен быть пустым"
	// CommandFailedPrefix starts the text of every failed command call.
	CommandFailedPrefix = "Не удалось выполнить команду: "
)

// Input parameter names shared by all command tools.
const (
	ParamProjectPath   = "projectPath"
	ParamSettingsFile  = "settingsFile"
	ParamIBConnection  = "ibConnection"
	ParamPathsOverride = "pathsOverride"
)

// pathsOverrideKeys are the directories a caller may relocate.
var pathsOverrideKeys = []string{"cf", "out", "cfe", "epf", "erf"}

func statusTool() mcp.Tool {
	return mcp.NewTool(StatusToolName,
		mcp.WithDescription("Состояние подключения к расширению 1c-platform-tools"),
		mcp.WithString("message", mcp.Description("Не используется")),
	)
}

func handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StatusText), nil
}

func commandTool(name, commandID string) mcp.Tool {
	overrideProps := make(map[string]any, len(pathsOverrideKeys))
	for _, key := range pathsOverrideKeys {
		overrideProps[key] = map[string]any{"type": "string"}
	}

	return mcp.NewTool(name,
		mcp.WithDescription("Команда 1c-platform-tools: "+commandID),
		mcp.WithString(ParamProjectPath,
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Абсолютный путь к корню проекта 1С (где лежит packagedef/env.json)"),
		),
		mcp.WithString(ParamSettingsFile,
			mcp.Description("Путь к env.json относительно projectPath. По умолчанию: env.json"),
		),
		mcp.WithString(ParamIBConnection,
			mcp.Description("Явная строка подключения к ИБ. Если не задана, берётся из env.json или /F./build/ib"),
		),
		mcp.WithObject(ParamPathsOverride,
			mcp.Description("Переопределение стандартных путей src/cf, build/out, src/cfe, src/epf, src/erf относительно projectPath"),
			mcp.Properties(overrideProps),
		),
	)
}

// commandHandler runs commandID for the projectPath given in the call. Only
// projectPath is forwarded; the other parameters are accepted for schema
// compatibility.
func (b *Bridge) commandHandler(commandID string) server.ToolHandlerFunc {
	log := b.log.With("command", commandID)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectPath, _ := request.GetArguments()[ParamProjectPath].(string)
		if projectPath == "" {
			log.Warn("rejected call without projectPath")
			return mcp.NewToolResultError(EmptyProjectPathText), nil
		}

		log.Debug("executing command", "projectPath", projectPath)
		res, err := b.client.ExecuteCommand(ctx, commandID, []any{}, projectPath)
		if err != nil {
			log.Error("command failed", "error", err)
			return mcp.NewToolResultError(CommandFailedPrefix + err.Error()), nil
		}

		return mcp.NewToolResultText(result.Format(res)), nil
	}
}
