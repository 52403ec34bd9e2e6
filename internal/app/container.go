package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/config"
	httpx "github.com/you/websession/internal/http"
	"github.com/you/websession/internal/http/handlers"
	"github.com/you/websession/internal/http/middleware"
	"github.com/you/websession/internal/infrastructure/auth"
	"github.com/you/websession/internal/infrastructure/backend"
	"github.com/you/websession/internal/infrastructure/crypto"
	"github.com/you/websession/internal/infrastructure/database"
	"github.com/you/websession/internal/infrastructure/metrics"
	"github.com/you/websession/internal/infrastructure/repositories"
	"github.com/you/websession/internal/infrastructure/storage"
	"github.com/you/websession/internal/services"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=..."
var Version = "dev"

// Redis key prefixes of the two media
const (
	redisTokensPrefix = "websession:tokens:"
	redisKeysPrefix   = "websession:keys:"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Logger *slog.Logger

	// Observability
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	// Infrastructure
	DB          *gorm.DB
	RedisClient *database.RedisClient
	Persistent  domain.KeyValueStore
	Volatile    domain.KeyValueStore

	// Services
	Backend      domain.BackendClient
	Audit        domain.AuditLogger
	Sessions     *services.SessionManager
	AuthSvc      domain.AuthService
	Capabilities *services.CapabilityService
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	container := &Container{Config: cfg, Logger: logger}

	if err := container.initMetrics(); err != nil {
		return nil, err
	}
	if err := container.initStorage(ctx); err != nil {
		container.Close()
		return nil, err
	}
	if err := container.initPolicies(); err != nil {
		container.Close()
		return nil, err
	}
	if err := container.initServices(); err != nil {
		container.Close()
		return nil, err
	}

	return container, nil
}

func (c *Container) initMetrics() error {
	c.Metrics = metrics.New()
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c.Metrics.Register(c.Registry)
}

// initStorage wires the persistent medium for encrypted tokens and the volatile one for session keys
func (c *Container) initStorage(ctx context.Context) error {
	switch c.Config.StorageBackend {
	case config.BackendRedis:
		c.RedisClient = database.NewRedis(c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
		if err := c.RedisClient.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Persistent = repositories.NewRedisKVStore(c.RedisClient.Client, redisTokensPrefix)
		c.Volatile = repositories.NewRedisKVStore(c.RedisClient.Client, redisKeysPrefix)
	case config.BackendDatabase:
		db, err := database.Open(c.Config.DSN, c.Config.GinMode == gin.DebugMode)
		if err != nil {
			return err
		}
		c.DB = db
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		c.Persistent = repositories.NewGormKVStore(db)
		// Keys stay out of the database so a dump alone never decrypts anything
		c.Volatile = repositories.NewMemoryKVStore()
	default:
		c.Persistent = repositories.NewMemoryKVStore()
		c.Volatile = repositories.NewMemoryKVStore()
	}
	c.Logger.Info("storage initialized", "backend", c.Config.StorageBackend, "method", c.Config.StorageMethod)
	return nil
}

func (c *Container) initPolicies() error {
	cas, err := auth.NewCasbinService(c.DB, c.Config.CasbinModelPath)
	if err != nil {
		return err
	}
	c.Capabilities = services.NewCapabilityService(cas.E)
	added, err := c.Capabilities.EnsurePolicies(auth.DefaultPolicies, c.DB != nil)
	if err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}
	if added > 0 {
		c.Logger.Info("casbin: seeded default policies", "count", added)
	}
	return nil
}

func (c *Container) initServices() error {
	c.Backend = backend.NewClient(backend.Config{
		BaseURL:   c.Config.APIBaseURL,
		Timeout:   c.Config.APITimeout,
		UserAgent: "websession/" + Version,
	}, c.Logger, c.Metrics)
	c.Audit = services.NewAuditLogger(c.Logger)

	sessions, err := services.NewSessionManager(services.SessionManagerConfig{
		StorageMethod: c.Config.StorageMethod,
		Persistent:    c.Persistent,
		Volatile:      c.Volatile,
		KeyTTL:        c.Config.SessionKeyTTL,
		Store: services.AuthStoreOptions{
			DefaultExpiresIn: c.Config.TokenDefaultExpiresIn,
			RefreshThreshold: c.Config.TokenRefreshThreshold,
			Inspector:        auth.NewJWTInspector(),
		},
		Logger:  c.Logger,
		Metrics: c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	c.Sessions = sessions

	c.AuthSvc = services.NewAuthService(c.Backend, c.Audit, services.AuthServiceConfig{
		EnableRegistration:      c.Config.EnableRegistration,
		EnableSessionManagement: c.Config.EnableSessionManagement,
	}, c.Logger, c.Metrics)
	return nil
}

// ExpiredEntryPurger is a medium that keeps expired entries until asked to drop them
type ExpiredEntryPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// ExpiringStores returns the media in use that need a periodic purge
func (c *Container) ExpiringStores() []ExpiredEntryPurger {
	var purgers []ExpiredEntryPurger
	for _, kv := range []domain.KeyValueStore{c.Persistent, c.Volatile} {
		if p, ok := kv.(ExpiredEntryPurger); ok {
			purgers = append(purgers, p)
		}
	}
	return purgers
}

// HealthChecks returns one probe per external medium in use
func (c *Container) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Ping
	}
	if c.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

// ProbeStorage runs an encrypted save/load/clear round trip under a throwaway
// namespace of both media
func (c *Container) ProbeStorage(ctx context.Context) error {
	ns := "probe:" + services.NewSessionID()
	cipher := crypto.NewSessionCipher(repositories.NewNamespacedStore(c.Volatile, ns), time.Minute)
	ts := storage.NewLocalEncryptedStorage(repositories.NewNamespacedStore(c.Persistent, ns), cipher, storage.Options{
		Logger:  c.Logger,
		Metrics: c.Metrics,
	})
	if !ts.IsStorageAvailable(ctx) {
		return domain.ErrStorageUnavailable
	}

	want := domain.TokenPair{AccessToken: "probe-access", RefreshToken: "probe-refresh"}
	if err := ts.SaveTokens(ctx, want); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer ts.ClearTokens(ctx)

	got := ts.GetTokens(ctx)
	if got == nil || *got != want {
		return errors.New("stored tokens did not round-trip")
	}
	return nil
}

// Router builds the HTTP surface over the container's services
func (c *Container) Router() *gin.Engine {
	guard := middleware.NewRouteGuard(c.AuthSvc, c.Capabilities, c.Audit, c.Logger, c.Metrics, middleware.GuardConfig{
		LoadingDelay: c.Config.LoadingDelay,
	})
	return httpx.BuildRouter(httpx.RouterDeps{
		Auth:     handlers.NewAuthHandlers(c.AuthSvc, c.Config.EnableRegistration, c.Logger),
		Sessions: handlers.NewSessionHandlers(c.AuthSvc, c.Logger),
		Health:   handlers.NewHealthHandlers(c.HealthChecks()),
		Guard:    guard,
		Resolver: c.Sessions,
		Cookie: middleware.CookieConfig{
			Name:   c.Config.CookieName,
			Domain: c.Config.CookieDomain,
			Secure: c.Config.CookieSecure,
		},
		Gatherer: c.Registry,
		Logger:   c.Logger,
		Metrics:  c.Metrics,
	})
}

// Close closes all connections
func (c *Container) Close() error {
	if c.RedisClient != nil {
		c.RedisClient.Close()
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}
