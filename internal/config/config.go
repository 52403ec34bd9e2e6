package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/logger"
)

// DefaultPath is where Load looks for the YAML file
const DefaultPath = "config/config.yml"

// Storage backends for the key/value media
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

type AppConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
	URL     string `yaml:"url"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type FeaturesConfig struct {
	EnableRegistration      *bool `yaml:"enable_registration"`
	EnableSessionManagement *bool `yaml:"enable_session_management"`
}

type TokenConfig struct {
	DefaultExpiresIn string `yaml:"default_expires_in"`
	RefreshThreshold string `yaml:"refresh_threshold"`
}

type StorageConfig struct {
	Method  string `yaml:"method"`
	Backend string `yaml:"backend"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
}

type SessionConfig struct {
	KeyTTL       string `yaml:"key_ttl"`
	IdleTimeout  string `yaml:"idle_timeout"`
	LoadingDelay string `yaml:"loading_delay"`
	CookieName   string `yaml:"cookie_name"`
	CookieDomain string `yaml:"cookie_domain"`
	CookieSecure *bool  `yaml:"cookie_secure"`
}

type CasbinConfig struct {
	ModelPath string `yaml:"model_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

type ConfigFile struct {
	App      AppConfig      `yaml:"app"`
	API      APIConfig      `yaml:"api"`
	Features FeaturesConfig `yaml:"features"`
	Token    TokenConfig    `yaml:"token"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Casbin   CasbinConfig   `yaml:"casbin"`
	Log      LogConfig      `yaml:"log"`
}

type Config struct {
	Port    string
	GinMode string
	AppURL  string

	APIBaseURL string
	APITimeout time.Duration

	EnableRegistration      bool
	EnableSessionManagement bool

	TokenDefaultExpiresIn time.Duration
	TokenRefreshThreshold time.Duration

	StorageMethod  domain.StorageMethod
	StorageBackend string
	DSN            string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	SessionKeyTTL      time.Duration
	SessionIdleTimeout time.Duration
	LoadingDelay       time.Duration
	CookieName         string
	CookieDomain       string
	CookieSecure       bool

	CasbinModelPath string
	Log             logger.Config

	// Warnings lists every invalid value that fell back to its default
	Warnings []string
}

// Load reads the YAML file at path when it exists, overlays .env and the
// process environment, and validates the result. Only malformed URLs are fatal.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return build(file)
}

func loadConfigFile(path string) (*ConfigFile, error) {
	var config ConfigFile
	if path == "" {
		return &config, nil
	}
	bytes, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("%w: could not parse config yaml: %v", domain.ErrInvalidConfig, err)
	}
	return &config, nil
}

func build(f *ConfigFile) (*Config, error) {
	l := &loader{}
	cfg := &Config{
		Port:    l.port("PORT", f.App.Port, "8080"),
		GinMode: l.oneOf("GIN_MODE", f.App.GinMode, "release", "debug", "release", "test"),

		APITimeout: l.duration("API_TIMEOUT", f.API.Timeout, 10*time.Second),

		EnableRegistration:      l.boolean("ENABLE_REGISTRATION", f.Features.EnableRegistration, true),
		EnableSessionManagement: l.boolean("ENABLE_SESSION_MANAGEMENT", f.Features.EnableSessionManagement, true),

		TokenDefaultExpiresIn: l.duration("TOKEN_DEFAULT_EXPIRES_IN", f.Token.DefaultExpiresIn, 15*time.Minute),
		TokenRefreshThreshold: l.duration("TOKEN_REFRESH_THRESHOLD", f.Token.RefreshThreshold, time.Minute),

		StorageMethod:  domain.StorageMethod(l.oneOf("STORAGE_METHOD", f.Storage.Method, string(domain.StorageMethodLocal), string(domain.StorageMethodLocal), string(domain.StorageMethodCookie))),
		StorageBackend: l.oneOf("STORAGE_BACKEND", f.Storage.Backend, BackendMemory, BackendMemory, BackendRedis, BackendDatabase),
		DSN:            l.str("DATABASE_DSN", f.Database.DSN, "sqlite:websession.db"),
		RedisAddr:      l.str("REDIS_ADDR", f.Redis.Addr, "localhost:6379"),
		RedisPassword:  l.str("REDIS_PASSWORD", f.Redis.Password, ""),
		RedisDB:        l.integer("REDIS_DB", f.Redis.DB, 0, 0, 15),

		SessionKeyTTL:      l.duration("SESSION_KEY_TTL", f.Session.KeyTTL, 24*time.Hour),
		SessionIdleTimeout: l.duration("SESSION_IDLE_TIMEOUT", f.Session.IdleTimeout, 30*time.Minute),
		LoadingDelay:       l.duration("LOADING_DELAY", f.Session.LoadingDelay, 2*time.Second),
		CookieName:         l.str("COOKIE_NAME", f.Session.CookieName, "websession"),
		CookieDomain:       l.str("COOKIE_DOMAIN", f.Session.CookieDomain, ""),

		CasbinModelPath: l.str("CASBIN_MODEL_PATH", f.Casbin.ModelPath, ""),
		Log: logger.Config{
			Level:    l.oneOf("LOG_LEVEL", f.Log.Level, "info", "debug", "info", "warn", "error"),
			Format:   l.oneOf("LOG_FORMAT", f.Log.Format, "json", "json", "text"),
			Output:   l.oneOf("LOG_OUTPUT", f.Log.Output, "stdout", "stdout", "file", "both"),
			FilePath: l.str("LOG_FILE", f.Log.File, "logs/websession.log"),
		},
	}

	if cfg.TokenRefreshThreshold >= cfg.TokenDefaultExpiresIn {
		l.warn("TOKEN_REFRESH_THRESHOLD %s is not below TOKEN_DEFAULT_EXPIRES_IN %s, using 1m", cfg.TokenRefreshThreshold, cfg.TokenDefaultExpiresIn)
		cfg.TokenRefreshThreshold = time.Minute
	}

	var err error
	if cfg.APIBaseURL, err = requireURL("API_BASE_URL", l.str("API_BASE_URL", f.API.BaseURL, "http://localhost:8000/api/v1")); err != nil {
		return nil, err
	}
	if cfg.AppURL, err = requireURL("APP_URL", l.str("APP_URL", f.App.URL, "http://localhost:8080")); err != nil {
		return nil, err
	}
	cfg.CookieSecure = l.boolean("COOKIE_SECURE", f.Session.CookieSecure, strings.HasPrefix(cfg.AppURL, "https://"))

	cfg.Warnings = l.warnings
	return cfg, nil
}

// requireURL accepts absolute http(s) URLs and strips a trailing slash
func requireURL(name, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s %q is not an absolute http(s) URL", domain.ErrInvalidConfig, name, raw)
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// loader resolves one setting at a time: environment first, then the file, then the default
type loader struct {
	warnings []string
}

func (l *loader) warn(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) raw(key, fileVal string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(fileVal)
}

func (l *loader) str(key, fileVal, def string) string {
	if v := l.raw(key, fileVal); v != "" {
		return v
	}
	return def
}

func (l *loader) oneOf(key, fileVal, def string, allowed ...string) string {
	v := l.raw(key, fileVal)
	if v == "" {
		return def
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	l.warn("%s %q is not one of %s, using %q", key, v, strings.Join(allowed, ", "), def)
	return def
}

// duration accepts Go durations ("90s") or bare seconds ("90")
func (l *loader) duration(key, fileVal string, def time.Duration) time.Duration {
	v := l.raw(key, fileVal)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		secs, convErr := strconv.Atoi(v)
		if convErr != nil {
			l.warn("%s %q is not a duration, using %s", key, v, def)
			return def
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		l.warn("%s %q must be positive, using %s", key, v, def)
		return def
	}
	return d
}

func (l *loader) integer(key, fileVal string, def, min, max int) int {
	v := l.raw(key, fileVal)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		l.warn("%s %q must be an integer in [%d, %d], using %d", key, v, min, max, def)
		return def
	}
	return n
}

func (l *loader) port(key, fileVal, def string) string {
	v := l.raw(key, fileVal)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err != nil || n < 1 || n > 65535 {
		l.warn("%s %q is not a valid port, using %s", key, v, def)
		return def
	}
	return v
}

func (l *loader) boolean(key string, fileVal *bool, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			l.warn("%s %q is not a boolean, using %t", key, v, def)
			return def
		}
		return b
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}
