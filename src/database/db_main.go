package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfoliosim/src/model"
)

// MainDB is the primary database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main database connection and runs
// migrations. Call once at application startup.
func InitMainDB() error {
	config := GetConfig()

	db, err := gorm.Open(postgres.Open(config.DatabaseURL),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate runs AutoMigrate for every persisted model. Exposed so tests
// can migrate an in-memory sqlite instance.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Bar{},
		&model.BacktestRun{},
		&model.Trade{},
		&model.PortfolioSnapshot{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
