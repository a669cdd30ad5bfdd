package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/bridge"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/cli"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/ipc"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/result"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/toolname"
)

func listCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List extension commands and their tool names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.mustLoad(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			client := ipc.NewClient(a.endpoint, ipc.WithLogger(a.log.WithComponent("ipc")))
			commands, err := client.ListCommands(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range commands {
				name := toolname.FromCommandID(id)
				fmt.Fprintf(out, "%s -> %s (%d)\n", id, name, toolname.CombinedLength(name))
			}
			fmt.Fprintf(out, "%d commands\n", len(commands))
			return nil
		},
	}
}

func callCmd(opts *rootOptions) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "call <commandId>",
		Short: "Execute one extension command and print the tool response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectPath == "" {
				return errors.New(bridge.EmptyProjectPathText)
			}

			a, err := opts.mustLoad(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			client := ipc.NewClient(a.endpoint, ipc.WithLogger(a.log.WithComponent("ipc")))
			res, err := client.ExecuteCommand(cmd.Context(), args[0], []any{}, projectPath)
			if err != nil {
				return fmt.Errorf("%s%w", bridge.CommandFailedPrefix, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Format(res))
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "absolute path to the 1C project root")
	return cmd
}

func toolNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool-name <commandId>...",
		Short: "Show the tool name derived from each command id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, id := range args {
				name := toolname.FromCommandID(id)
				line := fmt.Sprintf("%s -> %s (%d/%d)", id, name, toolname.CombinedLength(name), toolname.MaxCombinedLength)
				if strings.HasPrefix(name, toolname.TruncationMarker) {
					line += " truncated"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func doctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and the connection to the extension",
		Long: `Verifies the config file, the IPC endpoint settings, that the
1c-platform-tools extension answers listCommands, and that every
command maps to a tool name within the client length limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			client := ipc.NewClient(a.endpoint, ipc.WithLogger(a.log.WithComponent("ipc")))
			results := cli.RunAll(cmd.Context(), cli.DefaultChecks(cli.Environment{
				ConfigPath: a.configPath,
				Endpoint:   a.endpoint,
				Client:     client,
			}))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", toolname.ServerName, config.ServerVersion(os.Getenv))
			fmt.Fprintf(out, "Config: %s\n", a.configPath)
			fmt.Fprintf(out, "Endpoint: %s\n\n", a.endpoint.Address())
			fmt.Fprint(out, cli.FormatCheckResults(results))

			return cli.ValidateRequired(results)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", toolname.ServerName, config.ServerVersion(os.Getenv))
		},
	}
}
