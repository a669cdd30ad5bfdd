package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/logger"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/paths"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	host       string
	port       int
	token      string
	timeout    time.Duration
	logLevel   string
	logFile    string
	logToFile  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   toolname.ServerName,
		Short: "MCP server exposing 1c-platform-tools commands over stdio",
		Long: `Connects to the 1c-platform-tools editor extension over local IPC,
registers one MCP tool per extension command and serves them over stdio.

Without a subcommand the stdio server is started.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml or config.toml (default: XDG config dir)")
	flags.StringVar(&opts.host, "host", "", "IPC host (env "+config.EnvHost+", default "+config.DefaultHost+")")
	flags.IntVar(&opts.port, "port", 0, fmt.Sprintf("IPC port (env %s, default %d)", config.EnvPort, config.DefaultPort))
	flags.StringVar(&opts.token, "token", "", "IPC token (env "+config.EnvToken+")")
	flags.DurationVar(&opts.timeout, "timeout", 0, fmt.Sprintf("per-request timeout (env %s in ms, default %s)", config.EnvTimeoutMs, config.DefaultTimeout))
	flags.StringVar(&opts.logLevel, "log-level", "", "error, warnings, info or debug (env "+logger.LevelEnvVar+")")
	flags.StringVar(&opts.logFile, "log-file", "", "also append logs to this file")
	flags.BoolVar(&opts.logToFile, "log-to-file", false, "also append logs to the default log file")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(listCmd(opts))
	root.AddCommand(callCmd(opts))
	root.AddCommand(toolNameCmd())
	root.AddCommand(doctorCmd(opts))
	root.AddCommand(versionCmd())

	return root
}

// app is the state every command builds from the flags.
type app struct {
	configPath string
	file       *config.File
	fileErr    error
	endpoint   config.Endpoint
	log        *logger.Logger
}

func (a *app) Close() {
	if a.log != nil {
		a.log.Close()
	}
}

// load resolves configuration with precedence flags > config file >
// environment > defaults. A broken config file is returned in fileErr so
// that doctor can report it; other commands treat it as fatal.
func (o *rootOptions) load(cmd *cobra.Command) (*app, error) {
	a := &app{configPath: o.configPath}
	if a.configPath == "" {
		path, err := paths.ConfigFilePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		a.configPath = path
	}
	a.file, a.fileErr = config.LoadFile(a.configPath)

	flagOverrides := config.Overrides{
		Host:    o.host,
		Port:    o.port,
		Timeout: o.timeout,
	}
	if cmd.Flags().Changed("token") {
		token := o.token
		flagOverrides.Token = &token
	}
	a.endpoint = config.ResolveEndpoint(flagOverrides.Merge(a.file.Overrides()), os.Getenv)

	logOpts, err := o.logOptions(cmd, a.file)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(logOpts)
	if err != nil {
		return nil, err
	}
	a.log = lg

	if a.fileErr == nil && a.file != nil {
		lg.Get().Debug("loaded config", "path", a.file.Path())
	}
	lg.Get().Debug("resolved endpoint", "addr", a.endpoint.Address(), "timeout", a.endpoint.Timeout, "token", a.endpoint.Token != "")
	return a, nil
}

func (o *rootOptions) logOptions(cmd *cobra.Command, file *config.File) (logger.Options, error) {
	opts := logger.Options{Level: logger.LevelFromEnv(os.Getenv)}

	if file != nil {
		if file.Log.Level != "" {
			opts.Level = logger.ParseLevel(file.Log.Level)
		}
		opts.FilePath = file.Log.File
	}
	if cmd.Flags().Changed("log-level") {
		opts.Level = logger.ParseLevel(o.logLevel)
	}

	switch {
	case o.logFile != "":
		opts.FilePath = o.logFile
	case o.logToFile:
		path, err := paths.DefaultLogPath()
		if err != nil {
			return opts, fmt.Errorf("failed to resolve log path: %w", err)
		}
		opts.FilePath = path
	}
	return opts, nil
}

// mustLoad is load for commands that cannot run with a broken config file.
func (o *rootOptions) mustLoad(cmd *cobra.Command) (*app, error) {
	a, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	if a.fileErr != nil {
		a.Close()
		return nil, a.fileErr
	}
	if err := a.endpoint.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid IPC endpoint: %w", err)
	}
	return a, nil
}
