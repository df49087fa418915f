package guard

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/rbac"
)

// PageOptions configures how guarded pages respond
type PageOptions struct {
	// SignInPath receives anonymous visitors, with the original URI in ?next=
	SignInPath string
	// LoadingTimeout bounds how long a request waits for permissions before
	// the loading indicator is served instead
	LoadingTimeout time.Duration
	// Loading renders the neutral indicator. Defaults to LoadingHandler.
	Loading http.Handler
}

func (o PageOptions) withDefaults() PageOptions {
	if o.SignInPath == "" {
		o.SignInPath = "/signin"
	}
	if o.LoadingTimeout <= 0 {
		o.LoadingTimeout = 5 * time.Second
	}
	if o.Loading == nil {
		o.Loading = LoadingHandler
	}
	return o
}

const (
	// loadingAttemptParam counts how many times the loading page has been served
	loadingAttemptParam = "_loading"
	maxLoadingAttempt   = 5
	maxLoadingDelay     = 30
)

// LoadingHandler serves a minimal page that reloads itself. The delay doubles
// on every reload, from one second up to thirty.
var LoadingHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", loadingRefresh(r.URL))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!doctype html><html><head><title>Loading</title></head><body><p class="loading">Loading&hellip;</p></body></html>`))
})

// loadingRefresh builds the Refresh header value for the attempt recorded in u
func loadingRefresh(u *url.URL) string {
	attempt, err := strconv.Atoi(u.Query().Get(loadingAttemptParam))
	if err != nil || attempt < 0 {
		attempt = 0
	}
	if attempt > maxLoadingAttempt {
		attempt = maxLoadingAttempt
	}
	delay := 1 << attempt
	if delay > maxLoadingDelay {
		delay = maxLoadingDelay
	}

	next := &url.URL{Path: u.Path, RawPath: u.RawPath}
	q := u.Query()
	q.Set(loadingAttemptParam, strconv.Itoa(attempt+1))
	next.RawQuery = q.Encode()
	return fmt.Sprintf("%d; url=%s", delay, next.RequestURI())
}

// Protect wraps a page. Anonymous visitors go to the sign-in page; signed-in
// visitors see the page, the loading indicator or the fallback redirect.
func (g Guard) Protect(pm *rbac.PermissionMiddleware, opts PageOptions, next http.Handler) http.Handler {
	opts = opts.withDefaults()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := middleware.GetAuthContext(r)
		if authCtx == nil {
			target := opts.SignInPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		checker := rbac.CheckerFromContext(r.Context())
		if checker == nil {
			checker = pm.StartChecker(r, authCtx.UserID())
			defer checker.Dispose()
		}

		outcome := g.Await(r.Context(), checker, opts.LoadingTimeout)
		switch outcome.Decision {
		case DecisionRender:
			next.ServeHTTP(w, r)
		case DecisionRedirect:
			audit.Record(r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied,
				audit.ResourceTypeSession, r.URL.Path, "page access denied")
			http.Redirect(w, r, outcome.Location, http.StatusFound)
		default:
			opts.Loading.ServeHTTP(w, r)
		}
	})
}
