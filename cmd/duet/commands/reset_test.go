// ABOUTME: Tests for reset command
// ABOUTME: Verifies the confirmation guard and that every tier is cleared

package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/harper/duet/internal/storage/sqlite"
)

func TestResetCmd_RequiresConfirm(t *testing.T) {
	path := setupEnv(t)
	seedFacts(t, path)

	out, err := runCLI(t, "", "reset", "cli")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !strings.Contains(out, "--confirm") {
		t.Errorf("unexpected output: %q", out)
	}

	seed(t, path, func(ctx context.Context, repo *sqlite.Repository) {
		if len(repo.GetFacts(ctx, "cli")) != 3 {
			t.Error("facts should survive an unconfirmed reset")
		}
	})
}

func TestResetCmd_Confirmed(t *testing.T) {
	path := setupEnv(t)
	seedRelationship(t, path, "cli", 30)
	seedFacts(t, path)
	seedMemories(t, path)

	out, err := runCLI(t, "", "reset", "cli", "--confirm")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !strings.Contains(out, `Forgot "cli": 3 facts, 2 memories, 0 vectors`) {
		t.Errorf("unexpected output: %q", out)
	}

	seed(t, path, func(ctx context.Context, repo *sqlite.Repository) {
		if repo.GetRelationship(ctx, "cli") != nil {
			t.Error("relationship should be gone")
		}
		if len(repo.GetFacts(ctx, "cli")) != 0 {
			t.Error("facts should be gone")
		}
	})
}
