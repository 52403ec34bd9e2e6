package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/you/websession/internal/config"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

// Run serves the gateway until ctx is cancelled, then drains in-flight requests
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	for _, w := range cfg.Warnings {
		logger.Warn("invalid configuration value ignored", "detail", w)
	}
	gin.SetMode(cfg.GinMode)

	container, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           container.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.Sessions.RunSweeper(gctx, cleanupInterval, cfg.SessionIdleTimeout)
		return nil
	})

	if purgers := container.ExpiringStores(); len(purgers) > 0 {
		g.Go(func() error {
			runExpiredEntryCleanup(gctx, purgers, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "api_base_url", cfg.APIBaseURL, "storage_method", cfg.StorageMethod)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runExpiredEntryCleanup purges entries whose ttl elapsed from media that only
// evict on read; redis expires keys by itself and is never in the list
func runExpiredEntryCleanup(ctx context.Context, purgers []ExpiredEntryPurger, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeExpiredEntries(ctx, purgers, logger)
		}
	}
}

func purgeExpiredEntries(ctx context.Context, purgers []ExpiredEntryPurger, logger *slog.Logger) int64 {
	var total int64
	for _, p := range purgers {
		n, err := p.DeleteExpired(ctx)
		if err != nil {
			logger.Warn("failed to delete expired entries", "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		logger.Debug("deleted expired entries", "count", total)
	}
	return total
}
