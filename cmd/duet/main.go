// ABOUTME: Main entry point for the duet CLI
// ABOUTME: Sets up the Cobra root command and maps errors to exit codes
package main

import (
	"fmt"
	"os"

	"github.com/harper/duet/cmd/duet/commands"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	err := commands.Execute()
	if err != nil && !commands.IsRestart(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(commands.ExitCode(err))
}
