// Package logger builds the structured logger shared by the IPC client, the
// capability bridge and the CLI.
//
// There is no package-level logger: a *Logger is constructed once by the
// command, handed to collaborators as *slog.Logger values, and closed on exit.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LevelEnvVar selects the verbosity when no explicit level is configured.
const LevelEnvVar = "MCP_1C_LOG_LEVEL"

// Level is one of the four ordered verbosity levels. A message is written
// when its level is not above the configured one.
type Level int

const (
	LevelError Level = iota
	LevelWarnings
	LevelInfo
	LevelDebug
)

var levelNames = map[Level]string{
	LevelError:    "error",
	LevelWarnings: "warnings",
	LevelInfo:     "info",
	LevelDebug:    "debug",
}

// String returns the configuration name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "info"
}

// ParseLevel maps a level name to a Level. Matching is case-insensitive;
// "warn" is accepted as an alias of "warnings". Unknown or empty names
// fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LevelError
	case "warnings", "warn", "warning":
		return LevelWarnings
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LevelFromEnv reads LevelEnvVar through getenv.
func LevelFromEnv(getenv func(string) string) Level {
	return ParseLevel(getenv(LevelEnvVar))
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarnings:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func nameForSlogLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return LevelError.String()
	case l >= slog.LevelWarn:
		return LevelWarnings.String()
	case l >= slog.LevelInfo:
		return LevelInfo.String()
	default:
		return LevelDebug.String()
	}
}

// Options configures New.
type Options struct {
	Level Level
	// Writer receives every record. Defaults to os.Stderr; stdout is reserved
	// for the MCP stdio transport.
	Writer io.Writer
	// FilePath, when set, additionally appends records to this file.
	FilePath string
}

// Logger owns the slog root logger and the optional log file.
type Logger struct {
	root     *slog.Logger
	levelVar *slog.LevelVar
	mu       sync.Mutex
	file     *os.File
	path     string
}

// New creates a Logger. The caller must call Close when done.
func New(opts Options) (*Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	l := &Logger{levelVar: new(slog.LevelVar)}
	l.levelVar.Set(opts.Level.slogLevel())

	if opts.FilePath != "" {
		dir := filepath.Dir(opts.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.FilePath, err)
		}
		l.file = f
		l.path = opts.FilePath
		w = io.MultiWriter(w, f)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       l.levelVar,
		ReplaceAttr: replaceLevel,
	})
	l.root = slog.New(handler)

	l.root.Debug("logger initialized", "level", opts.Level.String(), "path", l.path)
	return l, nil
}

// replaceLevel renders slog levels with the configuration names.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(nameForSlogLevel(lvl))
		}
	}
	return a
}

// Get returns the root logger.
func (l *Logger) Get() *slog.Logger {
	return l.root
}

// WithComponent returns a logger with the component name attached.
//
// Example:
//
//	log := lg.WithComponent("ipc")
//	log.Info("request sent", "method", "listCommands")
//	// Output: level=info msg="request sent" component=ipc method=listCommands
func (l *Logger) WithComponent(component string) *slog.Logger {
	return l.root.With("component", component)
}

// SetLevel changes the verbosity of every logger derived from l.
func (l *Logger) SetLevel(level Level) {
	l.levelVar.Set(level.slogLevel())
}

// Path returns the log file path, or "" when logging only to the writer.
func (l *Logger) Path() string {
	return l.path
}

// Close releases the log file. Records logged afterwards still reach the
// writer but are no longer appended to the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Discard returns a logger that drops everything. Useful as a default for
// collaborators constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
