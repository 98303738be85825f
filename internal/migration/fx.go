package migration

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/paysettle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run migrates the schema for the configured database type.
func Run(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case db.TypePostgres:
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	case db.TypeSQLite:
		if err := ApplySchema(conn); err != nil {
			return err
		}
	default:
		return fmt.Errorf("migrations are not supported for %s; apply the schema externally", cfg.Type)
	}

	log.Info("schema migrated", zap.String("type", cfg.Type))
	return nil
}
