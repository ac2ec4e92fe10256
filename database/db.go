package database

import (
	"fmt"
	"os"

	"echoshop/logger"
	"echoshop/models/audit"
	"echoshop/models/log"
	"echoshop/models/product"
	"echoshop/models/security"
	"echoshop/models/session"
	"echoshop/models/user"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection with auto migration and indexing
func InitDB() (*gorm.DB, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", err)
	}

	// Get database configuration from environment variables
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_DATABASE")
	dbUser := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	sslmode := os.Getenv("DB_SSLMODE") // Optional: "disable", "require", etc.

	// Set default sslmode if not provided
	if sslmode == "" {
		sslmode = "disable"
	}

	// Build PostgreSQL DSN string
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, dbUser, password, database, sslmode)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Error("Failed to connect to the database", err)
		return nil, err
	}
	logger.Success("Successfully connected to the database")

	if err := Migrate(DB); err != nil {
		logger.Error("Failed to run migrations", err)
		return nil, err
	}
	logger.Success("All migrations completed successfully")

	return DB, nil
}

// Migrate runs auto migration and index creation for all models
func Migrate(db *gorm.DB) error {
	if err := autoMigrate(db); err != nil {
		return err
	}
	if err := createIndexes(db); err != nil {
		return err
	}
	return nil
}

// autoMigrate runs auto migration for all models in dependency order
func autoMigrate(db *gorm.DB) error {
	// Stage 1: Core foundation models
	stage1Models := []interface{}{
		&user.User{},
		&product.Product{},
	}

	for _, model := range stage1Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 2: Two-factor state tied to users
	stage2Models := []interface{}{
		&security.SecuritySettings{},
		&session.ChallengeSession{},
		&audit.TwoFactorEvent{},
	}

	for _, model := range stage2Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 3: Remaining models
	remainingModels := []interface{}{
		// Logging
		&log.Log{},
	}

	for _, model := range remainingModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return nil
}

// createIndexes creates additional indexes for better performance
func createIndexes(db *gorm.DB) error {
	// Postgres-specific index DDL; skipped for other dialects (tests run on sqlite)
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	indexes := []struct {
		name string
		sql  string
	}{
		{"idx_users_uuid", "CREATE INDEX IF NOT EXISTS idx_users_uuid ON users(uuid)"},
		{"idx_users_username", "CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)"},
		{"idx_users_role", "CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)"},
		{"idx_challenge_sessions_token", "CREATE INDEX IF NOT EXISTS idx_challenge_sessions_token ON challenge_sessions(session_token)"},
		{"idx_challenge_sessions_expires_at", "CREATE INDEX IF NOT EXISTS idx_challenge_sessions_expires_at ON challenge_sessions(expires_at)"},
		{"idx_security_settings_user_id", "CREATE INDEX IF NOT EXISTS idx_security_settings_user_id ON security_settings(user_id)"},
		{"idx_two_factor_events_user_id", "CREATE INDEX IF NOT EXISTS idx_two_factor_events_user_id ON two_factor_events(user_id)"},
		{"idx_two_factor_events_created_at", "CREATE INDEX IF NOT EXISTS idx_two_factor_events_created_at ON two_factor_events(created_at)"},
		{"idx_products_vendor_id", "CREATE INDEX IF NOT EXISTS idx_products_vendor_id ON products(vendor_id)"},
		{"idx_logs_status_code", "CREATE INDEX IF NOT EXISTS idx_logs_status_code ON logs(status_code)"},
		{"idx_logs_created_at", "CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)"},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
