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
	// Site
	SiteBaseURL string

	// Accounts. The main account owns the viewing history; the aux
	// account is used for catalog walks so its profile history stays
	// untouched.
	MainUsername string
	MainPassword string
	AuxUsername  string
	AuxPassword  string

	// Browser
	Headless   bool
	ChromePath string // empty means whatever chromedp finds on PATH

	// Crawl
	PageDelay        time.Duration // politeness delay between listing pages
	OTPWait          time.Duration // how long a login waits for a one-time code
	CodeTTL          time.Duration // one-time codes older than this are dead
	StaleAfter       time.Duration // detail/duration re-fetch threshold
	CheckpointWindow time.Duration // resume lookup window for crashed scans
	BackupTimeout    time.Duration // upper bound for one store backup upload

	// Schedules (standard cron expressions)
	HistoryCron  string
	EpisodesCron string
	FullScanCron string
	GapScanCron  string
	DetailsCron  string

	// Server
	ServerPort string

	// Paths
	CookieDir    string // $CONFIG_DIR/cookies
	DatabaseFile string // $CONFIG_DIR/kinolog.db
	BackupDir    string // optional; empty disables store backups

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("HEADLESS", true)
	viper.SetDefault("PAGE_DELAY_SECONDS", 3)
	viper.SetDefault("OTP_WAIT_SECONDS", 120)
	viper.SetDefault("CODE_TTL_MINUTES", 15)
	viper.SetDefault("STALE_DAYS", 90)
	viper.SetDefault("CHECKPOINT_WINDOW_HOURS", 24)
	viper.SetDefault("BACKUP_TIMEOUT_MINUTES", 10)
	viper.SetDefault("HISTORY_CRON", "0 */6 * * *")
	viper.SetDefault("EPISODES_CRON", "30 */6 * * *")
	viper.SetDefault("FULL_SCAN_CRON", "0 4 1 */3 *")
	viper.SetDefault("GAP_SCAN_CRON", "0 2 * * 0")
	viper.SetDefault("DETAILS_CRON", "0 3 * * *")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "kinolog")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		SiteBaseURL: viper.GetString("SITE_BASE_URL"),

		MainUsername: viper.GetString("MAIN_USERNAME"),
		MainPassword: viper.GetString("MAIN_PASSWORD"),
		AuxUsername:  viper.GetString("AUX_USERNAME"),
		AuxPassword:  viper.GetString("AUX_PASSWORD"),

		Headless:   viper.GetBool("HEADLESS"),
		ChromePath: viper.GetString("CHROME_PATH"),

		PageDelay:        time.Duration(viper.GetInt("PAGE_DELAY_SECONDS")) * time.Second,
		OTPWait:          time.Duration(viper.GetInt("OTP_WAIT_SECONDS")) * time.Second,
		CodeTTL:          time.Duration(viper.GetInt("CODE_TTL_MINUTES")) * time.Minute,
		StaleAfter:       time.Duration(viper.GetInt("STALE_DAYS")) * 24 * time.Hour,
		CheckpointWindow: time.Duration(viper.GetInt("CHECKPOINT_WINDOW_HOURS")) * time.Hour,
		BackupTimeout:    time.Duration(viper.GetInt("BACKUP_TIMEOUT_MINUTES")) * time.Minute,

		HistoryCron:  viper.GetString("HISTORY_CRON"),
		EpisodesCron: viper.GetString("EPISODES_CRON"),
		FullScanCron: viper.GetString("FULL_SCAN_CRON"),
		GapScanCron:  viper.GetString("GAP_SCAN_CRON"),
		DetailsCron:  viper.GetString("DETAILS_CRON"),

		ServerPort: viper.GetString("SERVER_PORT"),

		CookieDir:    filepath.Join(configDir, "cookies"),
		DatabaseFile: filepath.Join(configDir, "kinolog.db"),
		BackupDir:    viper.GetString("BACKUP_DIR"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.SiteBaseURL == "" {
		return nil, fmt.Errorf("SITE_BASE_URL is required")
	}
	if config.MainUsername == "" {
		return nil, fmt.Errorf("MAIN_USERNAME is required")
	}
	if config.MainPassword == "" {
		return nil, fmt.Errorf("MAIN_PASSWORD is required")
	}

	// The aux account is optional; catalog walks fall back to main
	if config.AuxUsername == "" {
		config.AuxUsername = config.MainUsername
		config.AuxPassword = config.MainPassword
	}

	return config, nil
}
