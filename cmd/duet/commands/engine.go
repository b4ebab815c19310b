// ABOUTME: Engine and repository bootstrapping shared by the CLI commands
// ABOUTME: Loads config once and hands commands a ready store or brain
package commands

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/storage/sqlite"
	"go.uber.org/zap"
)

// openEngine is swapped in tests to inject a scripted model
var openEngine = func(cfg *config.Config, logger *zap.Logger, ov app.Overrides) (*app.Engine, error) {
	return app.Open(cfg, logger, ov)
}

// withRepo runs fn against the configured storage and closes it afterwards
func withRepo(ctx context.Context, fn func(ctx context.Context, repo *sqlite.Repository, cfg *config.Config, logger *zap.Logger) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	repo, cc, err := app.OpenRepository(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cc != nil {
			_ = cc.Close()
		}
	}()

	return fn(ctx, repo, cfg, logger)
}
