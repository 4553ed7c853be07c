// Package cli defines the askvoice command tree.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/askvoice/internal/version"
	"github.com/spf13/cobra"
)

// AskOptions are the flags of the ask command.
type AskOptions struct {
	DraftPath string
}

// Handlers run each command. They receive the resolved --config path.
type Handlers interface {
	Ask(ctx context.Context, configPath string, opts AskOptions) error
	Stop(ctx context.Context, configPath string) error
	Cancel(ctx context.Context, configPath string) error
	Status(ctx context.Context, configPath string) error
	Probe(ctx context.Context, configPath string) error
	Devices(ctx context.Context, configPath string) error
	Doctor(ctx context.Context, configPath string) error
}

// Dependencies wires the command tree to its handlers.
type Dependencies struct {
	Handlers Handlers
}

// UsageError marks invalid invocations (exit code 2).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsUsage reports whether err came from argument or flag parsing.
func IsUsage(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}

// NewRootCmd builds the askvoice command tree.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "askvoice",
		Short:         "Voice input for questions: record, transcribe, append to a draft",
		Long:          "askvoice records one utterance from the default microphone, sends it for transcription, and appends the transcript to a question draft.",
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/askvoice/config.yaml)")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	rootCmd.AddCommand(newAskCmd(deps, &configPath))
	rootCmd.AddCommand(simpleCmd("stop", "Stop the active recording and transcribe it", &configPath, deps.Handlers.Stop))
	rootCmd.AddCommand(simpleCmd("cancel", "Discard the active recording", &configPath, deps.Handlers.Cancel))
	rootCmd.AddCommand(simpleCmd("status", "Print the active session state", &configPath, deps.Handlers.Status))
	rootCmd.AddCommand(simpleCmd("probe", "Print capture capability and the negotiated codec", &configPath, deps.Handlers.Probe))
	rootCmd.AddCommand(simpleCmd("devices", "List audio input sources", &configPath, deps.Handlers.Devices))
	rootCmd.AddCommand(simpleCmd("doctor", "Run configuration and environment checks", &configPath, deps.Handlers.Doctor))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newAskCmd(deps *Dependencies, configPath *string) *cobra.Command {
	var opts AskOptions
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Record a question and append its transcript to the draft",
		Long:  "Start a capture session, show elapsed time, stop on `askvoice stop` or Ctrl+C, transcribe, and append the transcript to the draft.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.Handlers.Ask(cmd.Context(), *configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.DraftPath, "draft", "", "draft file to append the transcript to (default: output.draft_path)")
	return cmd
}

func simpleCmd(
	use string,
	short string,
	configPath *string,
	run func(context.Context, string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
