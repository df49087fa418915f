// Package httputil provides the JSON response helpers, request parsing and
// generic middleware shared by every HTTP handler.
//
// Error bodies always have the form {"error": "message"}. Internal failures
// are logged and answered with the generic WriteInternalError.
//
//	var req CreateRoleRequest
//	if !httputil.ParseAndValidate(w, r, &req) {
//		return // 400 already written
//	}
//
// The middleware chain installed by the API server:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//	)
package httputil
