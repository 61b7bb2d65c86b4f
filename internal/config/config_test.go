package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		API: APIConfig{
			BaseURL:        "http://localhost:8080/api/v1/books",
			RequestTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataPath:    "/home/user/BookForge",
			SnapshotTTL: 24 * time.Hour,
		},
		Recovery: RecoveryConfig{
			HeartbeatInterval:    30 * time.Second,
			MaxMissedHeartbeats:  3,
			StaleResumeThreshold: 20 * time.Minute,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"WARN", true}, // case insensitive
		{"verbose", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_APIBaseURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"http://localhost:8080/api/v1/books", true},
		{"https://api.bookforge.app/v1/books", true},
		{"", false},
		{"not a url", false},
		{"/just/a/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := validConfig()
			cfg.API.BaseURL = tt.url
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_RecoverySettings(t *testing.T) {
	cfg := validConfig()
	cfg.Recovery.MaxMissedHeartbeats = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Recovery.HeartbeatInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/BookForge", "/default")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "BookForge"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("/abs/path", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestGetConfigValue(t *testing.T) {
	t.Setenv("BOOKFORGE_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "BOOKFORGE_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "BOOKFORGE_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "BOOKFORGE_TEST_MISSING", "default"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("BOOKFORGE_TEST_INT", "7")

	assert.Equal(t, 5, getIntConfigValue("5", "BOOKFORGE_TEST_INT", 3))
	assert.Equal(t, 7, getIntConfigValue("", "BOOKFORGE_TEST_INT", 3))
	assert.Equal(t, 3, getIntConfigValue("", "BOOKFORGE_TEST_INT_MISSING", 3))

	t.Setenv("BOOKFORGE_TEST_INT", "not a number")
	assert.Equal(t, 3, getIntConfigValue("", "BOOKFORGE_TEST_INT", 3))
}

func TestParseDurationValue(t *testing.T) {
	d, err := parseDurationValue("45s", "BOOKFORGE_TEST_DUR", "30s")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = parseDurationValue("", "BOOKFORGE_TEST_DUR_MISSING", "20m")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, d)

	_, err = parseDurationValue("soon", "BOOKFORGE_TEST_DUR", "30s")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nBOOKFORGE_ENVFILE_A=hello\nBOOKFORGE_ENVFILE_B=\"quoted\"\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("BOOKFORGE_ENVFILE_A", "")
	t.Setenv("BOOKFORGE_ENVFILE_B", "")
	os.Unsetenv("BOOKFORGE_ENVFILE_A")
	os.Unsetenv("BOOKFORGE_ENVFILE_B")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "hello", os.Getenv("BOOKFORGE_ENVFILE_A"))
	assert.Equal(t, "quoted", os.Getenv("BOOKFORGE_ENVFILE_B"))
}

func TestLoadEnvFile_EnvVarWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOOKFORGE_ENVFILE_C=from-file\n"), 0o600))

	t.Setenv("BOOKFORGE_ENVFILE_C", "from-env")
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("BOOKFORGE_ENVFILE_C"))
}

func TestLoadEnvFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("no equals sign here\n"), 0o600))
	assert.Error(t, loadEnvFile(path))
}
