package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wishbucket/internal/config"
	"wishbucket/internal/models"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Connect opens the configured database and migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open picks the driver from the DSN: postgres URLs and keyword DSNs use
// pgx, everything else is treated as a SQLite file.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	switch DetectDialect(trimmed) {
	case DialectPostgres:
		db, err := gorm.Open(postgres.Open(trimmed), &gorm.Config{Logger: newGormLogger(), TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("db: ping: %w", err)
		}
		log.Info("Connected to PostgreSQL")
		return db, nil
	default:
		db, err := gorm.Open(sqlite.Open(withSQLiteParams(trimmed)), &gorm.Config{Logger: newGormLogger(), TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", err)
		}
		// SQLite serialises writers; one connection keeps transactions from hitting SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("db: %s: %w", pragma, err)
			}
		}
		log.Info("Connected to SQLite")
		return db, nil
	}
}

// DetectDialect infers the dialect from a DSN string.
func DetectDialect(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

func withSQLiteParams(dsn string) string {
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = "file:" + dsn[len("sqlite://"):]
	}
	if strings.Contains(dsn, "_pragma=") || strings.Contains(dsn, "mode=memory") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)"
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func newGormLogger() logger.Interface {
	return logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}
