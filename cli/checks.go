// Package cli provides the self-checks behind the doctor command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

// Check is one diagnostic step
type Check struct {
	Name        string // Short identifier (e.g., "config", "peer")
	Required    bool   // Whether the server is unusable when the check fails
	Description string // Human-readable description
	Hint        string // What to do when the check fails
	Run         func(ctx context.Context) (detail string, err error)
}

// CheckResult contains the result of running a check
type CheckResult struct {
	Check  Check
	OK     bool
	Detail string // Short summary on success
	Error  error
}

// Run executes a single check
func Run(ctx context.Context, check Check) CheckResult {
	result := CheckResult{Check: check}
	if check.Run == nil {
		result.Error = fmt.Errorf("%s: no check function", check.Name)
		return result
	}

	detail, err := check.Run(ctx)
	if err != nil {
		result.Error = err
		return result
	}

	result.OK = true
	result.Detail = detail
	return result
}

// RunAll executes all checks in order and returns results
func RunAll(ctx context.Context, checks []Check) []CheckResult {
	results := make([]CheckResult, len(checks))
	for i, check := range checks {
		results[i] = Run(ctx, check)
	}
	return results
}

// ValidateRequired returns nil if every required check passed, otherwise an
// error describing what failed
func ValidateRequired(results []CheckResult) error {
	var failed []string

	for _, r := range results {
		if !r.Check.Required || r.OK {
			continue
		}
		failed = append(failed, fmt.Sprintf("  - %s (%s): %v\n    Hint: %s",
			r.Check.Name, r.Check.Description, r.Error, r.Check.Hint))
	}

	if len(failed) > 0 {
		return fmt.Errorf("required checks failed:\n%s", strings.Join(failed, "\n"))
	}

	return nil
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Checks:\n")
	for _, r := range results {
		status := "✓"
		if !r.OK {
			if r.Check.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		sb.WriteString(fmt.Sprintf("  %s %s", status, r.Check.Name))
		if r.OK && r.Detail != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", r.Detail))
		} else if !r.OK {
			if r.Check.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
			if r.Error != nil {
				sb.WriteString(": " + r.Error.Error())
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// CommandLister is the part of the IPC client the checks need.
type CommandLister interface {
	ListCommands(ctx context.Context) ([]string, error)
}

// Environment is what DefaultChecks inspects.
type Environment struct {
	ConfigPath string
	Endpoint   config.Endpoint
	Client     CommandLister
	Compressor *toolname.Compressor // toolname.Default() when nil
}

// discovery runs listCommands at most once and shares the answer between
// the peer and tool-name checks.
type discovery struct {
	once     sync.Once
	client   CommandLister
	commands []string
	err      error
}

func (d *discovery) get(ctx context.Context) ([]string, error) {
	d.once.Do(func() {
		d.commands, d.err = d.client.ListCommands(ctx)
	})
	return d.commands, d.err
}

// errSkipped marks checks that depend on a failed earlier check.
var errSkipped = errors.New("skipped: peer is unreachable")

// DefaultChecks returns the doctor checks for env
func DefaultChecks(env Environment) []Check {
	compressor := env.Compressor
	if compressor == nil {
		compressor = toolname.Default()
	}
	disc := &discovery{client: env.Client}

	return []Check{
		{
			Name:        "config",
			Required:    true,
			Description: "Configuration file",
			Hint:        "fix or remove " + env.ConfigPath,
			Run: func(context.Context) (string, error) {
				return checkConfigFile(env.ConfigPath)
			},
		},
		{
			Name:        "endpoint",
			Required:    true,
			Description: "IPC endpoint settings",
			Hint:        "check " + config.EnvHost + ", " + config.EnvPort + " and " + config.EnvTimeoutMs,
			Run: func(context.Context) (string, error) {
				if err := env.Endpoint.Validate(); err != nil {
					return "", err
				}
				return env.Endpoint.Address(), nil
			},
		},
		{
			Name:        "token",
			Required:    false,
			Description: "IPC token",
			Hint:        "set " + config.EnvToken + " if the extension requires one",
			Run: func(context.Context) (string, error) {
				if env.Endpoint.Token == "" {
					return "", errors.New("no token configured")
				}
				return "configured", nil
			},
		},
		{
			Name:        "peer",
			Required:    true,
			Description: "1c-platform-tools extension reachable over IPC",
			Hint:        "open VS Code with a 1C project and enable 1c-platform-tools.ipc.enabled",
			Run: func(ctx context.Context) (string, error) {
				commands, err := disc.get(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d commands", len(commands)), nil
			},
		},
		{
			Name:        "tool-names",
			Required:    true,
			Description: "Tool names fit the client length limit",
			Hint:        "add an abbreviation for the offending command",
			Run: func(ctx context.Context) (string, error) {
				commands, err := disc.get(ctx)
				if err != nil {
					return "", errSkipped
				}
				return checkToolNames(compressor, commands)
			},
		},
	}
}

func checkConfigFile(path string) (string, error) {
	if path == "" {
		return "not configured", nil
	}
	f, err := config.LoadFile(path)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "not present, using defaults", nil
	}
	return path, nil
}

// checkToolNames reports commands whose tool names overflow the budget or
// collide with an earlier command.
func checkToolNames(c *toolname.Compressor, commands []string) (string, error) {
	var problems []string
	owners := make(map[string]string, len(commands))
	truncated := 0

	for _, id := range commands {
		name := c.Compress(id)
		if n := c.CombinedLength(name); n > toolname.MaxCombinedLength {
			problems = append(problems, fmt.Sprintf("%s -> %s is %d long", id, name, n))
		}
		if strings.HasPrefix(name, toolname.TruncationMarker) {
			truncated++
		}
		if owner, ok := owners[name]; ok {
			problems = append(problems, fmt.Sprintf("%s -> %s collides with %s", id, name, owner))
			continue
		}
		owners[name] = id
	}

	if len(problems) > 0 {
		return "", errors.New(strings.Join(problems, "; "))
	}
	if truncated > 0 {
		return fmt.Sprintf("%d names, %d truncated", len(commands), truncated), nil
	}
	return fmt.Sprintf("%d names", len(commands)), nil
}
