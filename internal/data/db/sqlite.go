package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// OpenSQLite opens a single-connection SQLite database. It backs local runs
// (DB_DRIVER=sqlite) and the repository tests.
func OpenSQLite(dsn string, silent bool) (*gorm.DB, error) {
	lg := gormLog()
	if silent {
		lg = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   lg,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
