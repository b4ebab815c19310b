// ABOUTME: Tests for memories command
// ABOUTME: Verifies table output, type filtering, and validation

package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
)

func seedMemories(t *testing.T, path string) {
	t.Helper()
	seed(t, path, func(ctx context.Context, repo *sqlite.Repository) {
		now := time.Now().UTC()
		memories := []*models.EpisodicMemory{
			{ConversationID: "cli", Type: models.MemoryExperience, Trigger: "user", Action: "User introduced their dog", Result: "ok", Importance: 0.9, CreatedAt: now},
			{ConversationID: "cli", Type: models.MemoryToolUse, Trigger: "tool", Action: `remember_fact({"key":"color"})`, Result: "Remembered color.", Importance: 0.5, CreatedAt: now},
		}
		for _, m := range memories {
			if _, err := repo.CreateMemory(ctx, m); err != nil {
				t.Fatalf("create memory: %v", err)
			}
		}
	})
}

func TestMemoriesCmd_Table(t *testing.T) {
	path := setupEnv(t)
	seedMemories(t, path)

	out, err := runCLI(t, "", "memories")
	if err != nil {
		t.Fatalf("memories failed: %v", err)
	}
	for _, want := range []string{"TYPE", "IMPORTANCE", "experience", "User introduced their dog", "tool_use"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}

func TestMemoriesCmd_TypeFilterJSON(t *testing.T) {
	path := setupEnv(t)
	seedMemories(t, path)

	out, err := runCLI(t, "", "--format", "json", "memories", "--type", "tool_use")
	if err != nil {
		t.Fatalf("memories failed: %v", err)
	}

	var got []models.EpisodicMemory
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].Type != models.MemoryToolUse {
		t.Errorf("got %+v, want the single tool_use memory", got)
	}
}

func TestMemoriesCmd_Validation(t *testing.T) {
	setupEnv(t)

	if _, err := runCLI(t, "", "memories", "--type", "dream"); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := runCLI(t, "", "memories", "--limit", "-1"); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestMemoriesCmd_Empty(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "", "memories")
	if err != nil {
		t.Fatalf("memories failed: %v", err)
	}
	if !strings.Contains(out, "No memories found") {
		t.Errorf("unexpected output: %q", out)
	}
}
