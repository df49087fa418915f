package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthRegister    EventType = "auth.register"
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"

	// Authorization events
	EventTypeAuthzRoleCreate     EventType = "authz.role_create"
	EventTypeAuthzRoleUpdate     EventType = "authz.role_update"
	EventTypeAuthzRoleDelete     EventType = "authz.role_delete"
	EventTypeAuthzRoleAssign     EventType = "authz.role_assign"
	EventTypeAuthzRoleRevoke     EventType = "authz.role_revoke"
	EventTypeAuthzAccessDenied   EventType = "authz.access_denied"
	EventTypeAuthzResolveFailure EventType = "authz.resolve_failure"

	// Account review events
	EventTypeAdminUserApprove    EventType = "admin.user_approve"
	EventTypeAdminUserReject     EventType = "admin.user_reject"
	EventTypeAdminUserActivate   EventType = "admin.user_activate"
	EventTypeAdminUserDeactivate EventType = "admin.user_deactivate"

	// File gateway events
	EventTypeDataFileUpload   EventType = "data.file_upload"
	EventTypeDataFileDelete   EventType = "data.file_delete"
	EventTypeDataFolderCreate EventType = "data.folder_create"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event touched
type ResourceType string

const (
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeRole    ResourceType = "role"
	ResourceTypeFile    ResourceType = "file"
	ResourceTypeSession ResourceType = "session"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
