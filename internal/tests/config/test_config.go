package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/you/websession/internal/config"
)

// Env returns the environment every end-to-end test starts from. apiBaseURL
// points the gateway at the fake authentication API.
func Env(apiBaseURL string) map[string]string {
	return map[string]string{
		"GIN_MODE":                  "test",
		"PORT":                      "8081",
		"APP_URL":                   "http://localhost:8081",
		"API_BASE_URL":              apiBaseURL,
		"API_TIMEOUT":               "2s",
		"ENABLE_REGISTRATION":       "true",
		"ENABLE_SESSION_MANAGEMENT": "true",
		"TOKEN_DEFAULT_EXPIRES_IN":  "15m",
		"TOKEN_REFRESH_THRESHOLD":   "1m",
		"STORAGE_METHOD":            "localStorage",
		"STORAGE_BACKEND":           "memory",
		"LOADING_DELAY":             "500ms",
		"COOKIE_NAME":               "websession",
		"LOG_LEVEL":                 "error",
		"LOG_FORMAT":                "text",
		"LOG_OUTPUT":                "stdout",
	}
}

// LoadTestConfig sets the test environment, applies overrides and loads the
// configuration the way the binary does. A .env.test file at the project
// root, when present, is read first.
func LoadTestConfig(t *testing.T, apiBaseURL string, overrides map[string]string) *config.Config {
	t.Helper()

	if err := godotenv.Load(filepath.Join(GetProjectRoot(), ".env.test")); err != nil {
		t.Logf("no .env.test file: %v", err)
	}

	env := Env(apiBaseURL)
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load test configuration: %v", err)
	}
	if len(cfg.Warnings) > 0 {
		t.Fatalf("test configuration has invalid values: %v", cfg.Warnings)
	}
	return cfg
}

// GetProjectRoot returns the directory holding go.mod
func GetProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}

	return "."
}
