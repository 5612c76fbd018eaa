package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storefront-admin/storefront/internal/audit"
	"github.com/storefront-admin/storefront/internal/observability"
	"github.com/storefront-admin/storefront/internal/rbac"
	"github.com/storefront-admin/storefront/internal/shared"
	"github.com/storefront-admin/storefront/internal/users"
	"github.com/storefront-admin/storefront/internal/view"
	"github.com/storefront-admin/storefront/jobs"
	"github.com/storefront-admin/storefront/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	PageGuard      rbac.PageGuard
	RBACHandler    *rbac.AdminHandler
	UsersHandler   *users.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with the storefront admin routes.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	})

	forbiddenPath := "/403"
	if params.Config != nil && params.Config.RBACForbiddenPath != "" {
		forbiddenPath = params.Config.RBACForbiddenPath
	}
	r.With(params.PageGuard.Resolve).Get(forbiddenPath, func(w http.ResponseWriter, r *http.Request) {
		from := localPath(r.URL.Query().Get("from"))
		data := map[string]any{"From": from}
		if from != "" && from != forbiddenPath {
			data["Back"] = from
		}
		renderPage(w, r, params, http.StatusForbidden, "pages/forbidden.html", "Access denied", data)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(params.PageGuard.Require(rbac.ModeAll, shared.PermAdminAccess)).Get("/", func(w http.ResponseWriter, r *http.Request) {
			renderPage(w, r, params, http.StatusOK, "pages/dashboard.html", "Dashboard", nil)
		})
		if params.RBACHandler != nil {
			r.Route("/rbac", params.RBACHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func renderPage(w http.ResponseWriter, r *http.Request, params RouterParams, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Access:      rbac.AccessFromContext(r.Context()),
		Data:        data,
	}
	if err := params.Templates.RenderStatus(w, status, name, td); err != nil {
		params.Logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// localPath keeps only same-origin absolute paths so the access-denied page
// never links off site.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return ""
	}
	return p
}

// staticCacheHandler caches static assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
