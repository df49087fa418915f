// Package audit records security-relevant events: sign-ins, account review,
// role and assignment changes, denied access and file gateway mutations.
//
// # Destinations
//
// StructuredLogger writes events into the application log stream. FileLogger
// appends JSON lines to audit.log and rotates by size. Tee fans an event out
// to several destinations:
//
//	logger := audit.Tee{audit.NewStructuredLogger(log), fileLogger}
//
// # Usage
//
// Install the logger once with Middleware, then record from handlers:
//
//	audit.Record(r, audit.EventTypeAuthzRoleCreate, audit.EventStatusSuccess,
//		audit.ResourceTypeRole, role.Name, "role created")
//
// Recording never fails a request. Write errors go to the application log.
package audit
