// ABOUTME: Shared utility functions for CLI commands
// ABOUTME: Config loading, logger setup, output formatting, and small helpers
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/logging"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// loadConfig reads .env when present, then the environment
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger honours --verbose and --quiet over the configured level
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	switch {
	case quiet:
		level = "error"
	case verbose:
		level = "debug"
	}
	return logging.New(level, verbose)
}

// wantJSON reports whether output should be JSON
func wantJSON() bool {
	return format == "json"
}

func validateFormat() error {
	switch format {
	case "auto", "json", "text":
		return nil
	}
	return fmt.Errorf("--format must be auto, json, or text, got %q", format)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatTime formats a time relative to now for display
func formatTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
	return t.Format("2006-01-02")
}

// validatePositiveInt returns error if n is not positive
func validatePositiveInt(n int, name string) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return nil
}
