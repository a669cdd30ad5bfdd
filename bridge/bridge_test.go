package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/ipc"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

type registeredTool struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// fakeRegistrar records registrations in order.
type fakeRegistrar struct {
	tools []registeredTool
}

func (r *fakeRegistrar) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	r.tools = append(r.tools, registeredTool{tool: tool, handler: handler})
}

func (r *fakeRegistrar) find(name string) (registeredTool, bool) {
	for _, t := range r.tools {
		if t.tool.Name == name {
			return t, true
		}
	}
	return registeredTool{}, false
}

type executeCall struct {
	commandID   string
	args        []any
	projectPath string
}

// fakeClient is a CommandClient with canned answers.
type fakeClient struct {
	mu        sync.Mutex
	commands  []string
	listErr   error
	result    any
	execErr   error
	calls     []executeCall
	listCalls int
}

func (c *fakeClient) ListCommands(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	return c.commands, c.listErr
}

func (c *fakeClient) ExecuteCommand(_ context.Context, commandID string, args []any, projectPath string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, executeCall{commandID: commandID, args: args, projectPath: projectPath})
	return c.result, c.execErr
}

func callTool(t *testing.T, h server.ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res == nil {
		t.Fatal("handler returned nil result")
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items, want 1", len(res.Content))
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("content is %T, want text", res.Content[0])
		return ""
	}
}

func TestRegister_Tools(t *testing.T) {
	client := &fakeClient{commands: []string{
		"1c-platform-tools.configuration.loadFromSrc",
		"1c-platform-tools.dependencies.initializeProjectStructure",
	}}
	reg := &fakeRegistrar{}

	got := New(client).Register(context.Background(), reg)

	if got.Outcome != OutcomeTools {
		t.Errorf("Outcome = %v, want %v", got.Outcome, OutcomeTools)
	}
	if got.DiscoveryErr != nil {
		t.Errorf("DiscoveryErr = %v, want nil", got.DiscoveryErr)
	}

	wantNames := []string{"configuration_loadFromSrc", "deps_initProjStruct"}
	if len(reg.tools) != len(wantNames) {
		t.Fatalf("registered %d tools, want %d", len(reg.tools), len(wantNames))
	}
	for i, name := range wantNames {
		if reg.tools[i].tool.Name != name {
			t.Errorf("tool[%d] = %q, want %q", i, reg.tools[i].tool.Name, name)
		}
		if got.Tools[i].Name != name || got.Tools[i].CommandID != client.commands[i] {
			t.Errorf("Registration.Tools[%d] = %+v", i, got.Tools[i])
		}
	}
}

func TestRegister_InputSchema(t *testing.T) {
	client := &fakeClient{commands: []string{"a.b"}}
	reg := &fakeRegistrar{}
	New(client).Register(context.Background(), reg)

	schema := reg.tools[0].tool.InputSchema
	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	for _, p := range []string{ParamProjectPath, ParamSettingsFile, ParamIBConnection, ParamPathsOverride} {
		if _, ok := schema.Properties[p]; !ok {
			t.Errorf("schema is missing property %q", p)
		}
	}
	if len(schema.Required) != 1 || schema.Required[0] != ParamProjectPath {
		t.Errorf("Required = %v, want [%s]", schema.Required, ParamProjectPath)
	}

	override, ok := schema.Properties[ParamPathsOverride].(map[string]any)
	if !ok {
		t.Fatalf("pathsOverride property is %T", schema.Properties[ParamPathsOverride])
	}
	props, ok := override["properties"].(map[string]any)
	if !ok {
		t.Fatalf("pathsOverride properties is %T", override["properties"])
	}
	for _, key := range []string{"cf", "out", "cfe", "epf", "erf"} {
		if _, ok := props[key]; !ok {
			t.Errorf("pathsOverride is missing %q", key)
		}
	}
}

func TestRegister_EmptyCommandList(t *testing.T) {
	reg := &fakeRegistrar{}
	got := New(&fakeClient{commands: []string{}}).Register(context.Background(), reg)

	if got.Outcome != OutcomeTools {
		t.Errorf("Outcome = %v, want %v", got.Outcome, OutcomeTools)
	}
	if len(reg.tools) != 0 {
		t.Errorf("registered %d tools, want 0", len(reg.tools))
	}
}

func TestRegister_DiscoveryFailure(t *testing.T) {
	discoveryErr := errors.New("connection refused")
	reg := &fakeRegistrar{}

	got := New(&fakeClient{listErr: discoveryErr}).Register(context.Background(), reg)

	if got.Outcome != OutcomeDiagnostic {
		t.Errorf("Outcome = %v, want %v", got.Outcome, OutcomeDiagnostic)
	}
	if !errors.Is(got.DiscoveryErr, discoveryErr) {
		t.Errorf("DiscoveryErr = %v, want %v", got.DiscoveryErr, discoveryErr)
	}
	if len(reg.tools) != 1 {
		t.Fatalf("registered %d tools, want 1", len(reg.tools))
	}
	if reg.tools[0].tool.Name != StatusToolName {
		t.Errorf("tool = %q, want %q", reg.tools[0].tool.Name, StatusToolName)
	}

	for _, args := range []map[string]any{nil, {"message": "hi"}} {
		res := callTool(t, reg.tools[0].handler, args)
		if text := resultText(t, res); text != StatusText {
			t.Errorf("status text = %q, want %q", text, StatusText)
		}
		if res.IsError {
			t.Error("status tool should not report an error")
		}
	}
}

func TestRegister_DuplicateNames(t *testing.T) {
	client := &fakeClient{commands: []string{
		"1c-platform-tools.a.b",
		"a.b",
		"1c-platform-tools.c",
	}}
	reg := &fakeRegistrar{}

	got := New(client).Register(context.Background(), reg)

	if len(reg.tools) != 2 {
		t.Fatalf("registered %d tools, want 2", len(reg.tools))
	}
	if got.Tools[0].CommandID != "1c-platform-tools.a.b" {
		t.Errorf("first registration should win, got %q", got.Tools[0].CommandID)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].CommandID != "a.b" {
		t.Errorf("Skipped = %+v, want [a.b]", got.Skipped)
	}
}

func TestRegister_CustomCompressor(t *testing.T) {
	c := toolname.NewCompressor(toolname.ServerName, "x.", []toolname.Abbreviation{{Long: "command", Short: "cmd"}})
	reg := &fakeRegistrar{}

	New(&fakeClient{commands: []string{"x.command.run"}}, WithCompressor(c)).Register(context.Background(), reg)

	if len(reg.tools) != 1 || reg.tools[0].tool.Name != "cmd_run" {
		t.Errorf("tools = %+v, want cmd_run", reg.tools)
	}
}

func TestCommandHandler(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]any
		result    any
		execErr   error
		wantText  string
		wantError bool
		wantCall  bool
	}{
		{
			name:     "success with stdout",
			args:     map[string]any{"projectPath": "/proj"},
			result:   map[string]any{"stdout": "built"},
			wantText: "Выполнено. stdout: built",
			wantCall: true,
		},
		{
			name:     "success without result",
			args:     map[string]any{"projectPath": "/proj", "settingsFile": "env.json"},
			wantText: "Выполнено.",
			wantCall: true,
		},
		{
			name:      "command error",
			args:      map[string]any{"projectPath": "/proj"},
			execErr:   errors.New("Команда не выполнена"),
			wantText:  "Не удалось выполнить команду: Команда не выполнена",
			wantError: true,
			wantCall:  true,
		},
		{
			name:      "missing projectPath",
			args:      map[string]any{},
			wantText:  EmptyProjectPathText,
			wantError: true,
		},
		{
			name:      "empty projectPath",
			args:      map[string]any{"projectPath": ""},
			wantText:  EmptyProjectPathText,
			wantError: true,
		},
		{
			name:      "non-string projectPath",
			args:      map[string]any{"projectPath": 12},
			wantText:  EmptyProjectPathText,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{commands: []string{"1c-platform-tools.build"}, result: tt.result, execErr: tt.execErr}
			reg := &fakeRegistrar{}
			New(client).Register(context.Background(), reg)

			res := callTool(t, reg.tools[0].handler, tt.args)
			if text := resultText(t, res); text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if res.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v", res.IsError, tt.wantError)
			}

			if !tt.wantCall {
				if len(client.calls) != 0 {
					t.Errorf("ExecuteCommand called %d times, want 0", len(client.calls))
				}
				return
			}
			if len(client.calls) != 1 {
				t.Fatalf("ExecuteCommand called %d times, want 1", len(client.calls))
			}
			call := client.calls[0]
			if call.commandID != "1c-platform-tools.build" {
				t.Errorf("commandID = %q", call.commandID)
			}
			if call.projectPath != "/proj" {
				t.Errorf("projectPath = %q, want /proj", call.projectPath)
			}
			if call.args == nil || len(call.args) != 0 {
				t.Errorf("args = %#v, want empty non-nil slice", call.args)
			}
		})
	}
}

func TestCommandHandler_WhitespaceProjectPath(t *testing.T) {
	client := &fakeClient{commands: []string{"1c-platform-tools.build"}}
	reg := &fakeRegistrar{}
	New(client).Register(context.Background(), reg)

	res := callTool(t, reg.tools[0].handler, map[string]any{"projectPath": "  "})
	if res.IsError {
		t.Fatalf("IsError = true, text %q", resultText(t, res))
	}
	if text := resultText(t, res); text != "Выполнено." {
		t.Errorf("text = %q, want Выполнено.", text)
	}
	if len(client.calls) != 1 || client.calls[0].projectPath != "  " {
		t.Errorf("calls = %+v, want one call with projectPath %q", client.calls, "  ")
	}
}

func TestBridge_WithIPCClient(t *testing.T) {
	srv, err := ipc.NewMockServer()
	if err != nil {
		t.Fatalf("NewMockServer: %v", err)
	}
	defer srv.Close()

	srv.HandleResult(ipc.MethodListCommands, map[string]any{
		"commands": []string{"1c-platform-tools.configuration.loadFromSrc", "1c-platform-tools.infobase.fail"},
	})
	srv.Handle(ipc.MethodExecuteCommand, func(req ipc.Request) (any, *ipc.RPCError) {
		if req.Params["commandId"] == "1c-platform-tools.infobase.fail" {
			return map[string]any{"ok": false, "message": "База заблокирована"}, nil
		}
		return map[string]any{"ok": true, "commandResult": "готово"}, nil
	})

	client := ipc.NewClient(srv.Endpoint(5 * time.Second))
	reg := &fakeRegistrar{}
	got := New(client).Register(context.Background(), reg)
	if got.Outcome != OutcomeTools || len(reg.tools) != 2 {
		t.Fatalf("Register = %+v, %d tools", got, len(reg.tools))
	}

	load, ok := reg.find("configuration_loadFromSrc")
	if !ok {
		t.Fatal("configuration_loadFromSrc not registered")
	}
	if text := resultText(t, callTool(t, load.handler, map[string]any{"projectPath": "/p"})); text != "Выполнено. готово" {
		t.Errorf("text = %q, want %q", text, "Выполнено. готово")
	}

	fail, ok := reg.find("infobase_fail")
	if !ok {
		t.Fatal("infobase_fail not registered")
	}
	if text := resultText(t, callTool(t, fail.handler, map[string]any{"projectPath": "/p"})); text != "Не удалось выполнить команду: База заблокирована" {
		t.Errorf("text = %q", text)
	}
}

func TestBridge_PeerUnavailable(t *testing.T) {
	srv, err := ipc.NewMockServer()
	if err != nil {
		t.Fatalf("NewMockServer: %v", err)
	}
	endpoint := srv.Endpoint(2 * time.Second)
	srv.Close()

	reg := &fakeRegistrar{}
	got := New(ipc.NewClient(endpoint)).Register(context.Background(), reg)

	if got.Outcome != OutcomeDiagnostic {
		t.Fatalf("Outcome = %v, want %v", got.Outcome, OutcomeDiagnostic)
	}
	var connErr *ipc.ConnectionError
	if !errors.As(got.DiscoveryErr, &connErr) {
		t.Errorf("DiscoveryErr = %v, want *ipc.ConnectionError", got.DiscoveryErr)
	}
	if _, ok := reg.find(StatusToolName); !ok {
		t.Error("status tool not registered")
	}
}

func TestBridge_ExecuteTimeout(t *testing.T) {
	srv, err := ipc.NewMockServer()
	if err != nil {
		t.Fatalf("NewMockServer: %v", err)
	}
	defer srv.Close()

	srv.HandleResult(ipc.MethodListCommands, map[string]any{"commands": []string{"slow"}})
	srv.HandleSilent(ipc.MethodExecuteCommand)

	reg := &fakeRegistrar{}
	New(ipc.NewClient(srv.Endpoint(100 * time.Millisecond))).Register(context.Background(), reg)

	text := resultText(t, callTool(t, reg.tools[0].handler, map[string]any{"projectPath": "/p"}))
	if !strings.HasPrefix(text, CommandFailedPrefix+"Таймаут") {
		t.Errorf("text = %q, want timeout explanation", text)
	}
}

func TestSetup(t *testing.T) {
	b := New(&fakeClient{commands: []string{"a.b"}})
	s, reg := b.Setup(context.Background(), "1.2.3")
	if s == nil {
		t.Fatal("Setup returned nil server")
	}
	if reg.Outcome != OutcomeTools || len(reg.Tools) != 1 {
		t.Errorf("Registration = %+v", reg)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{OutcomeTools, "tools"},
		{OutcomeDiagnostic, "diagnostic"},
		{Outcome(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}
