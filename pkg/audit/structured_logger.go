package audit

import (
	"context"

	"github.com/platinummonkey/agora/pkg/observability"
)

// StructuredLogger writes audit events into the application log
type StructuredLogger struct {
	log *observability.Logger
}

// NewStructuredLogger creates an audit logger on top of log
func NewStructuredLogger(log *observability.Logger) *StructuredLogger {
	return &StructuredLogger{log: log.WithField("audit", true)}
}

func (s *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["actor_id"] = *event.UserID
	}
	if event.Username != "" {
		fields["actor"] = event.Username
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.log.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

func (s *StructuredLogger) Close() error { return nil }
