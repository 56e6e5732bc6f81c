package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zaqqye/inhouse_attendance/internal/config"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const connectAttempts = 5

func DSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)
}

// Connect opens the database, retrying with backoff while postgres is still
// coming up.
func Connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := gorm.Open(postgres.Open(DSN(cfg)), gcfg)
		if err == nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(30 * time.Minute)
				return db, nil
			}
			lastErr = err
		} else {
			lastErr = err
		}

		wait := b.Duration()
		log.WarnContext(ctx, "Database not ready", "attempt", attempt, "retryIn", wait, logging.ErrAttr(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, lastErr)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Area{},
		&models.User{},
		&models.InHouse{},
		&models.InHouseMember{},
		&models.Biometric{},
		&models.Attendance{},
	)
}
