package migrate

import (
	"context"
	"fmt"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup, but only in dev
// with the auto-migrate flag on. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql pool handle: %w", err)
	}

	src := EmbeddedSource()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "migrations": src.String()})
	logg.Info(ctx, "applying migrations")
	if err := src.Run(ctx, pool, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
