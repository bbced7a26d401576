package db

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-tracker/internal/asset"
	"asset-tracker/internal/auth"
	"asset-tracker/internal/config"
	"asset-tracker/internal/user"
)

// Open connects to the configured database. Driver errors are translated so
// unique and foreign key violations can be matched with errors.Is.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.Database.DSN))
	default:
		return nil, oops.Code("DB_UNKNOWN_DRIVER").With("driver", cfg.Database.Driver).Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	logLevel := logger.Silent
	if cfg.Database.LogQueries {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxIdle.Duration > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdle.Duration)
	}
	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off per
// connection by default.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// Migrate creates or updates the users, assets and sessions tables. With
// caseSensitiveUsernames false, usernames are also unique ignoring case.
func Migrate(db *gorm.DB, caseSensitiveUsernames bool) error {
	if err := db.AutoMigrate(&user.User{}, &asset.Asset{}, &auth.Session{}); err != nil {
		return oops.Code("DB_MIGRATE_FAILED").Wrap(err)
	}
	return user.EnsureUsernameIndex(db, caseSensitiveUsernames)
}

// Ping checks the connection is usable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
