package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/guard"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/platinummonkey/agora/pkg/rbac"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "signin", "forum", "documents", "admin", "notfound"}

// Pages renders the server-side pages
type Pages struct {
	templates    map[string]*template.Template
	fallback     string
	authHandlers *AuthHandlers
}

// pageData is passed to every template
type pageData struct {
	Title string
	User  *auth.User
	Error string
	Next  string
	Email string
}

// NewPages parses the embedded templates. Guarded pages redirect denied
// visitors to fallback.
func NewPages(fallback string) (*Pages, error) {
	if fallback == "" {
		fallback = guard.DefaultFallback
	}
	p := &Pages{
		templates: make(map[string]*template.Template, len(pageNames)),
		fallback:  fallback,
	}
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// RegisterRoutes registers the page routes
func (p *Pages) RegisterRoutes(router *mux.Router, pm *rbac.PermissionMiddleware, limiter middleware.Limiter) {
	opts := guard.PageOptions{SignInPath: "/signin"}

	router.Handle("/", p.page("home", "Agora", http.StatusOK)).Methods(http.MethodGet)
	router.HandleFunc("/signin", p.signInPage).Methods(http.MethodGet)
	router.Handle("/signin", limiter.Handler(http.HandlerFunc(p.signInForm))).Methods(http.MethodPost)
	router.HandleFunc("/signout", p.signOut).Methods(http.MethodPost)

	router.Handle("/forum", guard.Require(p.fallback, permissions.ViewForum).
		Protect(pm, opts, p.page("forum", "Forum", http.StatusOK))).Methods(http.MethodGet)
	router.Handle("/documents", guard.Require(p.fallback, permissions.ViewDocuments).
		Protect(pm, opts, p.page("documents", "Documents", http.StatusOK))).Methods(http.MethodGet)
	router.Handle("/admin", guard.Require(p.fallback, permissions.AdminAccess).
		Protect(pm, opts, p.page("admin", "Administration", http.StatusOK))).Methods(http.MethodGet)

	notFound := p.page("notfound", "Not found", http.StatusNotFound)
	if p.fallback != "/" {
		router.Handle(p.fallback, notFound).Methods(http.MethodGet)
	}
	router.NotFoundHandler = notFound
}

func (p *Pages) page(name, title string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Title: title}
		if authCtx := middleware.GetAuthContext(r); authCtx != nil {
			data.User = authCtx.User
		}
		p.render(w, r, name, status, data)
	})
}

// signInPage handles GET /signin
func (p *Pages) signInPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if middleware.GetAuthContext(r) != nil {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	p.render(w, r, "signin", http.StatusOK, pageData{Title: "Sign in", Next: next})
}

// signInForm handles POST /signin
func (p *Pages) signInForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.render(w, r, "signin", http.StatusBadRequest, pageData{Title: "Sign in", Error: "invalid form"})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	next := safeNext(r.PostFormValue("next"))

	user, status, msg := p.authHandlers.startSession(w, r, email, r.PostFormValue("password"))
	if user == nil {
		p.render(w, r, "signin", status, pageData{Title: "Sign in", Error: msg, Next: next, Email: email})
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// signOut handles POST /signout
func (p *Pages) signOut(w http.ResponseWriter, r *http.Request) {
	if err := p.authHandlers.endSession(w, r); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to revoke session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}

// render executes into a buffer so a template error never leaves a half
// written page
func (p *Pages) render(w http.ResponseWriter, r *http.Request, name string, status int, data pageData) {
	var buf bytes.Buffer
	if err := p.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("template", name).Error("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// safeNext only accepts local absolute paths as redirect targets. Browsers
// strip tabs and newlines from a Location before resolving it, so any control
// character rejects the target outright.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	for _, c := range next {
		if c < 0x20 || c == 0x7f {
			return "/"
		}
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return next
}
