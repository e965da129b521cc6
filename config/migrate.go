package config

import (
	"context"
	"fmt"

	"github.com/bellapacxx/bingo-live/store"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

// Migrate brings the relational schema up to date.
func Migrate(ctx context.Context, g *store.Gorm) error {
	if err := g.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("[Config] database migration completed")
	return nil
}
