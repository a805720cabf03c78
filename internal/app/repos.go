package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/data/db"
	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

// openDB picks the database from DB_DRIVER and migrates it.
func openDB(log *logger.Logger, cfg Config) (*gorm.DB, func() error, error) {
	var (
		theDB *gorm.DB
		closeFn func() error
	)
	switch cfg.DBDriver {
	case "sqlite":
		sq, err := db.OpenSQLite(cfg.SQLiteDSN, false)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using sqlite", "dsn", cfg.SQLiteDSN)
		theDB = sq
		closeFn = func() error {
			sqlDB, err := sq.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
	case "postgres", "":
		pg, err := db.NewPostgresService(log)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		theDB = pg.DB()
		closeFn = pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("automigrate: %w", err)
	}
	return theDB, closeFn, nil
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) repos.Repos {
	log.Info("Wiring repos...")
	return repos.New(theDB, log)
}
