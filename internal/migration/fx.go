package migration

import (
	"strings"

	"github.com/abrahamoflondon/innercircle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		dbType := strings.ToLower(strings.TrimSpace(cfg.Type))
		if dbType == db.TypePostgres || dbType == "" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, err := RunMigrations(sqlDB)
			if err != nil {
				return err
			}
			log.Info("postgres migrations applied", zap.Uint("version", version))
			return nil
		}

		if err := AutoMigrate(conn); err != nil {
			return err
		}
		log.Info("schema auto-migrated", zap.String("type", dbType))
		return nil
	}),
)
