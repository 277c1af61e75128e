// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/blumarkets/strata/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	Port             int
	LogLevel         string
	DevMode          bool
	PolicyPath       string // Optional YAML policy override; empty means built-in defaults
	SchedulerEnabled bool
	Backup           *BackupConfig
}

// BackupConfig holds local and remote backup configuration
type BackupConfig struct {
	LocalKeepDays int // Days of daily on-disk copies to retain
	RetentionDays int // Remote archive retention; 0 keeps everything

	// Remote backups only run when Bucket and credentials are set.
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// RemoteEnabled reports whether remote backups are configured
func (b *BackupConfig) RemoteEnabled() bool {
	return b.S3Bucket != "" && b.S3AccessKeyID != "" && b.S3SecretAccessKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STRATA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("STRATA_PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		PolicyPath:       getEnv("STRATA_POLICY_FILE", ""),
		SchedulerEnabled: getEnvAsBool("STRATA_SCHEDULER_ENABLED", true),
		Backup: &BackupConfig{
			LocalKeepDays:     getEnvAsInt("BACKUP_LOCAL_KEEP_DAYS", 14),
			RetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 90),
			S3Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			S3Region:          getEnv("BACKUP_S3_REGION", "auto"),
			S3Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			S3AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from the settings database.
// This should be called after the config database is initialized.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	bucket, err := settingsRepo.Get("backup_s3_bucket")
	if err != nil {
		return fmt.Errorf("failed to get backup_s3_bucket from settings: %w", err)
	}
	if bucket != nil && *bucket != "" {
		c.Backup.S3Bucket = *bucket
	}

	accessKey, err := settingsRepo.Get("backup_s3_access_key_id")
	if err != nil {
		return fmt.Errorf("failed to get backup_s3_access_key_id from settings: %w", err)
	}
	if accessKey != nil && *accessKey != "" {
		c.Backup.S3AccessKeyID = *accessKey
	}

	secretKey, err := settingsRepo.Get("backup_s3_secret_access_key")
	if err != nil {
		return fmt.Errorf("failed to get backup_s3_secret_access_key from settings: %w", err)
	}
	if secretKey != nil && *secretKey != "" {
		c.Backup.S3SecretAccessKey = *secretKey
	}

	retention, err := settingsRepo.GetInt("backup_retention_days", c.Backup.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to get backup_retention_days from settings: %w", err)
	}
	c.Backup.RetentionDays = retention

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
