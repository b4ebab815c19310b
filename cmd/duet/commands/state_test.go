// ABOUTME: Tests for state command
// ABOUTME: Verifies single, missing, and listed relationship output

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

func seedRelationship(t *testing.T, path, conversationID string, demonAffection int) {
	t.Helper()
	seed(t, path, func(ctx context.Context, repo *sqlite.Repository) {
		state := models.NewRelationshipState(conversationID, time.Now().UTC())
		state.Demon.Affection = demonAffection
		if _, err := repo.CreateRelationship(ctx, state); err != nil {
			t.Fatalf("create relationship: %v", err)
		}
	})
}

func TestStateCmd_Single(t *testing.T) {
	path := setupEnv(t)
	seedRelationship(t, path, "cli", 55)

	out, err := runCLI(t, "", "state", "cli")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	for _, want := range []string{"Conversation: cli", "Demon", "Angel", "Affection: 55"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}

func TestStateCmd_JSON(t *testing.T) {
	path := setupEnv(t)
	seedRelationship(t, path, "cli", 55)

	out, err := runCLI(t, "", "--format", "json", "state", "cli")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}

	var snap struct {
		State models.RelationshipState        `json:"state"`
		Rules map[models.Persona]models.Rules `json:"rules"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if snap.State.Demon.Affection != 55 {
		t.Errorf("demon affection = %d, want 55", snap.State.Demon.Affection)
	}
	if _, ok := snap.Rules[models.Angel]; !ok {
		t.Error("rules should include the angel")
	}
}

func TestStateCmd_Missing(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "", "state", "stranger")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if !strings.Contains(out, "No relationship yet") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestStateCmd_All(t *testing.T) {
	path := setupEnv(t)
	seedRelationship(t, path, "alpha", 10)
	seedRelationship(t, path, "beta", 70)

	out, err := runCLI(t, "", "state", "--all")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("output %q should list both conversations", out)
	}
}

func TestStateCmd_RequiresConversation(t *testing.T) {
	setupEnv(t)

	if _, err := runCLI(t, "", "state"); err == nil {
		t.Error("expected error without a conversation or --all")
	}
}
