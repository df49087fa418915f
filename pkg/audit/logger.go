package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/contextkeys"
	"github.com/platinummonkey/agora/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

var loggerKey = contextkeys.New[Logger]("audit_logger")

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return loggerKey.With(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger := loggerKey.Get(ctx); logger != nil {
		return logger
	}
	return NewNoOpLogger()
}

// Middleware makes logger available to handlers through FromContext
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

// NewNoOpLogger returns a logger that discards every event
func NewNoOpLogger() Logger {
	return noOpLogger{}
}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                     { return nil }

// NewEvent builds an event populated from the request and its authenticated actor.
// r may be nil for events raised outside a request.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
	if r == nil {
		return event
	}

	ctx := r.Context()
	event.RequestID = contextkeys.RequestID.Get(ctx)
	event.IPAddress = clientIP(r)
	event.UserAgent = r.UserAgent()
	event.Method = r.Method
	event.Path = r.URL.Path

	if authCtx := auth.FromContext(ctx); authCtx != nil {
		id := authCtx.User.ID
		event.UserID = &id
		event.Username = authCtx.User.Email
	}
	return event
}

// Record logs an event built from r. Failures are reported to the application
// log and never returned to the request.
func Record(r *http.Request, eventType EventType, status EventStatus, resourceType ResourceType, resourceID, message string) {
	event := NewEvent(r, eventType, status)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	Emit(r.Context(), event)
}

// Emit logs a prepared event through the context's audit logger
func Emit(ctx context.Context, event *AuditEvent) {
	if err := FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("event_type", event.EventType).Error("Failed to write audit event")
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
