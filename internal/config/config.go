// Package config provides client configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the client configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	API      APIConfig
	Storage  StorageConfig
	Recovery RecoveryConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// APIConfig holds backend API configuration.
type APIConfig struct {
	// BaseURL is the root of the BookForge generation API.
	BaseURL string
	// RequestTimeout applies to plain REST calls. The generation stream is
	// exempt: it stays open for the whole job (15-30 minutes).
	RequestTimeout time.Duration
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	// DataPath is the base directory for the snapshot store, the local
	// library database, and exported files.
	DataPath string
	// SnapshotTTL is how long an interrupted-session snapshot stays
	// resumable before it is treated as absent (default: 24h).
	SnapshotTTL time.Duration
}

// RecoveryConfig holds heartbeat/recovery configuration.
type RecoveryConfig struct {
	// HeartbeatInterval is the liveness probe period (default: 30s).
	HeartbeatInterval time.Duration
	// MaxMissedHeartbeats is how many consecutive failures are tolerated
	// before the connection is reported as lost (default: 3).
	MaxMissedHeartbeats int
	// StaleResumeThreshold is the elapsed-time cutoff past which an
	// interrupted session is offered as resume-or-restart rather than
	// auto-resumed (default: 20m).
	StaleResumeThreshold time.Duration
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	apiURL := flag.String("api-url", "", "BookForge API base URL")
	requestTimeout := flag.String("request-timeout", "", "REST request timeout (default: 30s)")
	dataPath := flag.String("data-path", "", "Base path for local data storage")
	snapshotTTL := flag.String("snapshot-ttl", "", "Session snapshot lifetime (default: 24h)")
	heartbeatInterval := flag.String("heartbeat-interval", "", "Heartbeat probe interval (default: 30s)")
	maxMissed := flag.String("max-missed-heartbeats", "", "Consecutive heartbeat failures before disconnect (default: 3)")
	staleThreshold := flag.String("stale-resume-threshold", "", "Elapsed time before resume requires confirmation (default: 20m)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		API: APIConfig{
			BaseURL: getConfigValue(*apiURL, "BOOKFORGE_API_URL", "http://localhost:8080/api/v1/books"),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "BOOKFORGE_DATA_PATH", ""),
		},
		Recovery: RecoveryConfig{
			MaxMissedHeartbeats: getIntConfigValue(*maxMissed, "MAX_MISSED_HEARTBEATS", 3),
		},
	}

	// Parse durations.
	var err error
	if cfg.API.RequestTimeout, err = parseDurationValue(*requestTimeout, "REQUEST_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.Storage.SnapshotTTL, err = parseDurationValue(*snapshotTTL, "SNAPSHOT_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.Recovery.HeartbeatInterval, err = parseDurationValue(*heartbeatInterval, "HEARTBEAT_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.Recovery.StaleResumeThreshold, err = parseDurationValue(*staleThreshold, "STALE_RESUME_THRESHOLD", "20m"); err != nil {
		return nil, err
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API base URL: %s", c.API.BaseURL)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Recovery.MaxMissedHeartbeats < 1 {
		return fmt.Errorf("max missed heartbeats must be at least 1, got %d", c.Recovery.MaxMissedHeartbeats)
	}
	if c.Recovery.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/BookForge.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "BookForge")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration setting from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(strings.ReplaceAll(envKey, "_", " ")), strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
