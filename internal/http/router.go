package httpx

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/http/handlers"
	"github.com/you/websession/internal/http/middleware"
	"github.com/you/websession/internal/infrastructure/metrics"
)

// RouterDeps carries everything the router mounts
type RouterDeps struct {
	Auth     *handlers.AuthHandlers
	Sessions *handlers.SessionHandlers
	Health   *handlers.HealthHandlers
	Guard    *middleware.RouteGuard
	Resolver domain.StoreResolver
	Cookie   middleware.CookieConfig
	// Gatherer backs /metrics; nil leaves the route out
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func BuildRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger, d.Metrics))

	r.GET("/health", d.Health.Health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	browser := r.Group("/", middleware.BrowserSessionMW(d.Resolver, d.Cookie, d.Logger))
	browser.GET("/", d.Sessions.Home)
	browser.GET("/login", d.Auth.LoginPage)
	browser.GET("/register", d.Auth.RegisterPage)

	auth := browser.Group("/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/register", d.Auth.Register)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)
	auth.GET("/state", d.Auth.State)

	v := browser.Group("/", d.Guard.RequireAuth())
	v.GET("/dashboard", d.Sessions.Dashboard)
	v.GET("/api/me", d.Sessions.Me)
	v.GET("/api/sessions", d.Sessions.ListSessions)
	v.DELETE("/api/sessions/:id", d.Sessions.RevokeSession)

	adm := browser.Group("/admin", d.Guard.RequireCapability(domain.CapabilityAdmin))
	adm.GET("", d.Sessions.Admin)

	return r
}
