// internal/database/connection.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", cfg.Driver).Info("Database connection established successfully")
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Author{},
		&models.Book{},
		&models.Marketplace{},
		&models.Contract{},
		&models.SalesImport{},
		&models.Sale{},
		&models.RoyaltyCalculation{},
		&models.RoyaltyItem{},
		&models.RoyaltyCorrection{},
		&models.Payment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_contracts_book_status ON contracts(book_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_contracts_status_end ON contracts(status, end_date)",
		"CREATE INDEX IF NOT EXISTS idx_sales_period_status ON sales(period_month, status)",
		"CREATE INDEX IF NOT EXISTS idx_sales_imports_created ON sales_imports(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_royalty_items_sale ON royalty_items(sale_id)",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status, created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}

	return nil
}

// SeedInitialData creates the default marketplaces when none exist.
func SeedInitialData(db *gorm.DB) error {
	logrus.Info("Seeding initial data...")

	defaultMarketplaces := []models.Marketplace{
		{Code: "AMAZON", Name: "Amazon", IsActive: true},
		{Code: "GOOGLE_PLAY", Name: "Google Play Books", IsActive: true},
		{Code: "TOKOPEDIA", Name: "Tokopedia", IsActive: true},
		{Code: "SHOPEE", Name: "Shopee", IsActive: true},
	}

	for _, marketplace := range defaultMarketplaces {
		var count int64
		if err := db.Model(&models.Marketplace{}).Where("code = ?", marketplace.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check marketplace %s: %w", marketplace.Code, err)
		}

		if count == 0 {
			m := marketplace
			if err := db.Create(&m).Error; err != nil {
				logrus.WithError(err).WithField("code", m.Code).Warn("Failed to seed marketplace")
			}
		}
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// WithTransaction runs fn inside a single database transaction bound to ctx.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ForUpdate adds a row lock on dialects that support it. SQLite serializes
// writers at the database level.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
