// Package storage implements the file gateway behind the documents area.
//
// Every backend satisfies Gateway: list a folder, upload, download, delete and
// create folders, addressed by slash-separated paths relative to the backend
// root. Paths are normalized by CleanPath, which rejects any ".." segment
// instead of resolving it.
//
// # Backends
//
//   - FileSystemStorage: a local directory, accessed through os.Root
//   - S3Backend: an S3 compatible bucket (AWS or MinIO); folders are key prefixes
//   - WebDAVBackend: a remote WebDAV share
//
// Backends are registered by name in a Registry and looked up per request.
// Instrument wraps a backend so each call is reported to an OperationRecorder.
//
// # Errors
//
// Backend failures are wrapped in ErrOperationFailed with the cause kept in the
// chain for logging. Callers should show clients only the generic message:
//
//	entries, err := gw.List(ctx, "docs")
//	if errors.Is(err, storage.ErrInvalidPath) {
//		// 400
//	} else if err != nil {
//		// log err, respond "operation failed"
//	}
//
// # Testing
//
// Unit tests run the local backend on a temp dir, the WebDAV backend against
// golang.org/x/net/webdav, and the S3 backend against an in-memory fake. The
// MinIO test needs Docker and the integration build tag.
package storage
