// Package api assembles the agora HTTP server.
//
// # Overview
//
// Server wires the JSON API and the server-rendered pages onto one gorilla/mux
// router:
//
//	server, err := api.NewServer(cfg.Server, api.Dependencies{
//		Logger:   logger,
//		Metrics:  metrics,
//		Auth:     authService,
//		Sessions: sessions,
//		Roles:    roleStore,
//		Storage:  backends,
//		Audit:    auditLogger,
//	})
//	http.ListenAndServe(cfg.Server.Addr, server)
//
// # Routes
//
//	POST   /api/auth/register              create a pending account
//	POST   /api/auth/signin                start a session (rate limited)
//	POST   /api/auth/signout               end the session
//	GET    /api/auth/me                    current user
//	GET    /api/auth/debug                 roles and effective permissions
//
//	GET    /api/admin/roles                role administration (manage_roles)
//	GET    /api/admin/users                account review (approve_users or manage_users)
//	POST   /api/admin/users/{id}/approve   approve and assign the default role
//	POST   /api/admin/users/{id}/reject
//	PUT    /api/admin/users/{id}/active    enable or disable an account
//
//	GET    /api/files/{backend}?path=      list a folder (view_files)
//	POST   /api/files/{backend}            multipart upload (upload_files)
//	DELETE /api/files/{backend}?path=      delete a file or folder (delete_files)
//	GET    /api/files/{backend}/download?path=
//	POST   /api/files/{backend}/folders
//
// Pages live at /, /signin, /forum, /documents and /admin. Guarded pages send
// anonymous visitors to /signin and signed-in visitors without the required
// permission to the configured fallback page.
//
// # Middleware
//
// Every request passes request ID, logging, recovery, security headers and
// CORS handling before routing. Matched routes add HTTP metrics labelled by
// route template, audit context and session resolution. The /api subrouter
// additionally resolves the caller's permissions once per request.
//
// Storage failures are reported as a generic "operation failed" with the cause
// logged server side. Malformed paths are a 400.
package api
