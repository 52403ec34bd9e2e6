package services

import (
	"context"
	"log/slog"

	"github.com/you/websession/domain"
)

// SlogAuditLogger writes audit events as structured log records
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an audit logger on top of logger
func NewAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

// LogEvent implements domain.AuditLogger. Failures are logged at warn level.
func (a *SlogAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) {
	if event == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event_type", string(event.EventType)),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", event.Email))
	}
	if event.ErrorMsg != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMsg))
	}
	if len(event.Metadata) > 0 {
		meta := make([]any, 0, len(event.Metadata)*2)
		for k, v := range event.Metadata {
			meta = append(meta, k, v)
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, "audit event", attrs...)
}

var _ domain.AuditLogger = (*SlogAuditLogger)(nil)
