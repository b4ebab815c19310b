// ABOUTME: Sync commands for Charm cloud synchronization of conversation history
// ABOUTME: Provides status, immediate sync, and local wipe
package commands

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/charm"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/storage"
	"github.com/spf13/cobra"
)

// openCharm is swapped in tests
var openCharm = func(cfg *config.Config) (*charm.Client, error) {
	return charm.NewClient(&charm.Config{Host: cfg.CharmHost, DBName: cfg.CharmDBName, AutoSync: cfg.AutoSync})
}

// NewSyncCmd creates the sync command group
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage Charm cloud synchronization",
		Long: `Manage synchronization with Charm cloud.

With DUET_HISTORY_BACKEND=charm, conversation history lives in a Charm KV
store and syncs across devices linked to the same Charm account via SSH
keys. Feelings, facts, and memories stay in the local SQLite database.
The sqlite and bolt backends keep history on this machine only.`,
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncNowCmd())
	cmd.AddCommand(newSyncWipeCmd())

	return cmd
}

// withCharm opens the charm client for the duration of fn
func withCharm(fn func(cfg *config.Config, client *charm.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := openCharm(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Charm: %w", err)
	}
	defer func() { _ = client.Close() }()
	return fn(cfg, client)
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status and connection info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCharm(func(cfg *config.Config, client *charm.Client) error {
				w := cmd.OutOrStdout()
				id, idErr := client.ID()
				conversations, _ := storage.NewCharmHistory(client, cfg.HistoryCap, nil).Conversations(context.Background())

				if wantJSON() {
					return printJSON(w, map[string]interface{}{
						"connected":     idErr == nil,
						"user_id":       id,
						"host":          cfg.CharmHost,
						"backend":       cfg.HistoryBackend,
						"conversations": len(conversations),
					})
				}

				if idErr != nil {
					fmt.Fprintln(w, "Status: Not connected")
					fmt.Fprintln(w, "Check that your SSH keys are linked to a Charm account")
					return nil
				}
				fmt.Fprintln(w, "Status: Connected")
				fmt.Fprintf(w, "User ID: %s\n", id)
				fmt.Fprintf(w, "Host: %s\n", cfg.CharmHost)
				fmt.Fprintf(w, "History backend: %s\n", cfg.HistoryBackend)
				fmt.Fprintf(w, "Synced conversations: %d\n", len(conversations))
				return nil
			})
		},
	}
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Force immediate sync with Charm cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCharm(func(_ *config.Config, client *charm.Client) error {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "Syncing...")
				if err := client.Sync(); err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				fmt.Fprintln(w, "Sync complete")
				return nil
			})
		},
	}
}

func newSyncWipeCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Wipe local Charm history (nuclear option)",
		Long: `Completely wipe the locally cached Charm history.

WARNING: This deletes all locally cached history. Your cloud data
remains intact and will be re-synced on next access.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !confirm {
				fmt.Fprintln(w, "This will wipe ALL local history!")
				fmt.Fprintln(w, "Run with --confirm to proceed")
				return nil
			}

			return withCharm(func(_ *config.Config, client *charm.Client) error {
				if err := client.Reset(); err != nil {
					return fmt.Errorf("failed to wipe data: %w", err)
				}
				fmt.Fprintln(w, "Local history wiped successfully")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the wipe operation")

	return cmd
}
