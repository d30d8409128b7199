package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/db/models"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

// MaybeAutoMigrate brings the schema up to date when running in dev with
// CONVERTFLOW_AUTO_MIGRATE set. Postgres runs the goose files in DefaultDir;
// SQLite is bootstrapped from the models.
func MaybeAutoMigrate(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil {
		return fmt.Errorf("db client required")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": driver})

	if driver == db.DriverSQLite {
		logg.Info(ctx, "bootstrapping sqlite schema from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := New(sqlDB, driver, DefaultDir, logg)
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "running goose migrations (dev auto-run)")
	if err := migrator.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
