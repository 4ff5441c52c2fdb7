package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// MAL API
	MALClientID     string
	MALClientSecret string

	// Sync
	SyncInterval    time.Duration // minimum spacing between auto-sync runs
	RequestInterval time.Duration // minimum spacing between MAL API requests
	PageSize        int           // page size hint for list pagination
	ActivityKeep    int           // activity log entries kept by the daily prune

	// Server
	ServerPort string

	// Paths
	TokenFile    string // $CONFIG_DIR/token.json
	DatabaseFile string // $CONFIG_DIR/malarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SYNC_INTERVAL_MINUTES", 30)
	viper.SetDefault("REQUEST_INTERVAL_MS", 1000)
	viper.SetDefault("PAGE_SIZE", 100)
	viper.SetDefault("ACTIVITY_KEEP", 500)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "malarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// MAL API
		MALClientID:     viper.GetString("MAL_CLIENT_ID"),
		MALClientSecret: viper.GetString("MAL_CLIENT_SECRET"),

		// Sync
		SyncInterval:    time.Duration(viper.GetInt("SYNC_INTERVAL_MINUTES")) * time.Minute,
		RequestInterval: time.Duration(viper.GetInt("REQUEST_INTERVAL_MS")) * time.Millisecond,
		PageSize:        viper.GetInt("PAGE_SIZE"),
		ActivityKeep:    viper.GetInt("ACTIVITY_KEEP"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		TokenFile:    filepath.Join(configDir, "token.json"),
		DatabaseFile: filepath.Join(configDir, "malarr.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.MALClientID == "" {
		return nil, fmt.Errorf("MAL_CLIENT_ID is required")
	}
	if config.MALClientSecret == "" {
		return nil, fmt.Errorf("MAL_CLIENT_SECRET is required")
	}
	if config.RequestInterval <= 0 {
		return nil, fmt.Errorf("REQUEST_INTERVAL_MS must be positive")
	}

	return config, nil
}
