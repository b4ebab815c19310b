// ABOUTME: Tests for root CLI command and global flags
// ABOUTME: Verifies command structure, subcommands, flag handling, and exit codes

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/llm/llmtest"
	"github.com/harper/duet/internal/storage/sqlite"
	"go.uber.org/zap"
)

// setupEnv points the CLI at a fresh database and returns its path
func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duet.db")
	t.Setenv("DUET_DB_PATH", path)
	t.Setenv("DUET_HISTORY_BACKEND", "sqlite")
	t.Setenv("DUET_LOG_LEVEL", "error")
	t.Setenv("OPENAI_API_KEY", "")
	return path
}

// seed opens the database, runs fn, and closes it again
func seed(t *testing.T, path string, fn func(ctx context.Context, repo *sqlite.Repository)) {
	t.Helper()
	repo, err := sqlite.NewRepositoryWithPath(path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	fn(context.Background(), repo)
	if err := repo.Close(); err != nil {
		t.Fatalf("close repo: %v", err)
	}
}

// useFakeModel makes every engine the CLI opens talk to fake
func useFakeModel(t *testing.T, fake *llmtest.Fake) {
	t.Helper()
	orig := openEngine
	openEngine = func(cfg *config.Config, logger *zap.Logger, ov app.Overrides) (*app.Engine, error) {
		ov.Client = fake
		return app.Open(cfg, logger, ov)
	}
	t.Cleanup(func() { openEngine = orig })
}

// runCLI executes the root command with args and returns combined output
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetErr(&output)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return output.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "duet" {
		t.Errorf("Use = %q, want %q", cmd.Use, "duet")
	}

	if cmd.Short == "" {
		t.Error("Short description should not be empty")
	}

	// Verify the ASCII banner is in the long description (uses block characters)
	if !strings.Contains(cmd.Long, "███") {
		t.Error("Long description should contain ASCII banner")
	}
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	cmd := NewRootCmd()

	tests := []struct {
		flagName  string
		shorthand string
		defValue  string
	}{
		{"verbose", "v", "false"},
		{"quiet", "q", "false"},
		{"format", "", "auto"},
	}

	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("--%s flag not found", tt.flagName)
			}

			if tt.shorthand != "" && flag.Shorthand != tt.shorthand {
				t.Errorf("--%s shorthand = %q, want %q", tt.flagName, flag.Shorthand, tt.shorthand)
			}

			if flag.DefValue != tt.defValue {
				t.Errorf("--%s default = %q, want %q", tt.flagName, flag.DefValue, tt.defValue)
			}
		})
	}
}

func TestRootCmd_FlagValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{"verbose only", []string{"--verbose", "version"}, false},
		{"quiet only", []string{"--quiet", "version"}, false},
		{"verbose and quiet", []string{"--verbose", "--quiet", "version"}, true},
		{"json format", []string{"--format", "json", "version"}, false},
		{"unknown format", []string{"--format", "xml", "version"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)

			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	expectedSubcommands := []string{
		"chat",
		"mcp",
		"state",
		"facts",
		"memories",
		"recall",
		"export",
		"reset",
		"sync",
		"version",
	}

	for _, subCmdName := range expectedSubcommands {
		t.Run(subCmdName, func(t *testing.T) {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Use == subCmdName || strings.HasPrefix(sub.Use, subCmdName+" ") {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Subcommand %q not found", subCmdName)
			}
		})
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	out, _ := runCLI(t, "", "--help")

	for _, want := range []string{"Usage:", "Available Commands:", "Flags:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Help output should contain %q", want)
		}
	}
}

func TestRootCmd_SilenceUsage(t *testing.T) {
	cmd := NewRootCmd()

	if !cmd.SilenceUsage {
		t.Error("SilenceUsage should be true to prevent usage on errors")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"failure", errors.New("boom"), 1},
		{"restart", ErrRestartRequested, ExitRestart},
		{"wrapped restart", fmt.Errorf("turn: %w", ErrRestartRequested), ExitRestart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
