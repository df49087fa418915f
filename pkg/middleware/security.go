package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecurityConfig controls the security header middleware
type SecurityConfig struct {
	SSLRedirect bool
	IsDev       bool
}

// SecurityHeaders sets frame, sniffing, referrer and CSP headers on every response
func SecurityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.SSLRedirect,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.IsDev,
	})
	return sm.Handler
}
