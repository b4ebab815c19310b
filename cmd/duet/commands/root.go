// ABOUTME: Root command, global flags, and exit-code mapping for the duet CLI
// ABOUTME: Registers every subcommand under one cobra tree
package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// ExitRestart tells a supervisor to start the process again
const ExitRestart = 75

// ErrRestartRequested is returned when a persona asked for a restart
var ErrRestartRequested = errors.New("restart requested")

var (
	verbose bool
	quiet   bool
	format  string
)

const banner = `
██████╗ ██╗   ██╗███████╗████████╗
██╔══██╗██║   ██║██╔════╝╚══██╔══╝
██║  ██║██║   ██║█████╗     ██║
██║  ██║██║   ██║██╔══╝     ██║
██████╔╝╚██████╔╝███████╗   ██║
╚═════╝  ╚═════╝ ╚══════╝   ╚═╝
`

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duet",
		Short: "A demon and an angel who remember you",
		Long: banner + `
Duet is a two-persona companion. The demon and the angel keep their own
feelings about you, remember what you tell them, reflect on their memories
overnight, and sometimes start chatting when you have been quiet.

Talk to them with 'duet chat', or run 'duet mcp' to expose them to an
LLM agent over the Model Context Protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().StringVar(&format, "format", "auto", "Output format: auto, json, or text")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return validateFormat()
	}

	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewStateCmd())
	cmd.AddCommand(NewFactsCmd())
	cmd.AddCommand(NewMemoriesCmd())
	cmd.AddCommand(NewRecallCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewResetCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

// IsRestart reports whether err asks the supervisor for a restart
func IsRestart(err error) bool {
	return errors.Is(err, ErrRestartRequested)
}

// ExitCode maps an Execute error to a process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsRestart(err):
		return ExitRestart
	default:
		return 1
	}
}
