// Package middleware provides HTTP middleware for sessions, rate limiting and security headers.
//
// # Overview
//
// The middleware in this package runs in front of every route registered by
// pkg/api. It resolves the session cookie into an auth context, throttles
// credential endpoints and sets browser security headers.
//
// # Middleware Components
//
// SessionMiddleware: Cookie sessions
//
//	sessions := middleware.NewSessionMiddleware(sessionManager, userStore)
//	router.Use(sessions.Handler)
//	// Unusable cookies are cleared and the request continues anonymously
//
// RequireAuth: Rejects anonymous API requests with 401
//
//	router.Handle("/api/auth/me", middleware.RequireAuth(meHandler))
//
// RateLimiter: In-memory token bucket per client IP
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Handle("/api/auth/signin", limiter.Handler(signIn))
//
// DistributedRateLimiter: Redis fixed window shared by every instance
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "agora:signin")
//	router.Handle("/api/auth/signin", limiter.Handler(signIn))
//	// Redis errors are logged and the request is allowed
//
// SecurityHeaders: Frame, sniffing, referrer and CSP headers
//
//	router.Use(middleware.SecurityHeaders(middleware.SecurityConfig{IsDev: true}))
//
// # Rate Limiting
//
// Default: 10 req/min, 5 burst, keyed by client IP. X-Forwarded-For and
// X-Real-IP are honored. Rejected requests get 429 with a Retry-After header.
//
// # Related Packages
//
//   - pkg/session: Cookie and revocation handling
//   - pkg/auth: Account state checked on every request
//   - pkg/guard: Page-level permission checks
package middleware
