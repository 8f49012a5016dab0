package vault

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainguard-dev/clog"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLogin              AuditEvent = "vault_login"
	AuditLogout             AuditEvent = "vault_logout"
	AuditSessionExpired     AuditEvent = "session_expired"
	AuditSessionStarted     AuditEvent = "session_started"
	AuditSessionRestored    AuditEvent = "session_restored"
	AuditIntegrityViolation AuditEvent = "integrity_violation"
	AuditDecryptFailed      AuditEvent = "decrypt_failed"
	AuditRecordExpired      AuditEvent = "record_expired"
	AuditKeyUnavailable     AuditEvent = "key_unavailable"
)

// auditLogger writes structured security events to the logger carried by
// the context.
type auditLogger struct {
	metrics *metricsCollector
	now     func() time.Time
}

func newAuditLogger(metrics *metricsCollector, now func() time.Time) *auditLogger {
	return &auditLogger{metrics: metrics, now: now}
}

func (al *auditLogger) log(ctx context.Context, event AuditEvent, attrs ...slog.Attr) {
	level := slog.LevelInfo
	switch event {
	case AuditIntegrityViolation, AuditDecryptFailed, AuditKeyUnavailable:
		level = slog.LevelWarn
	}
	baseAttrs := []slog.Attr{
		slog.String("component", "vault"),
		slog.String("event", string(event)),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	clog.FromContext(ctx).LogAttrs(ctx, level, "audit", baseAttrs...)
	al.metrics.recordEvent(event)
}

// logFailure logs a security event with a reason.
func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(ctx, event, attrs...)
}
