package rbac

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
)

type accessContextKey struct{}

// ContextWithAccess stores the resolved access snapshot in context.
func ContextWithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext returns the snapshot stored by a page guard. The zero
// Access reports Resolved == false.
func AccessFromContext(ctx context.Context) Access {
	access, _ := ctx.Value(accessContextKey{}).(Access)
	return access
}

// PageGuard protects server-rendered pages. Anonymous visitors are sent to
// the login page; signed-in visitors lacking permissions get the
// access-denied surface with the original location attached.
type PageGuard struct {
	Authorizer    *Authorizer
	Logger        *slog.Logger
	LoginPath     string
	ForbiddenPath string
	// Forbidden, when set, renders the denial in place instead of
	// redirecting to ForbiddenPath. It must answer with 403.
	Forbidden http.Handler
}

// Require gates next on the required permissions combined with mode. The
// resolved snapshot is stored in the request context for region checks.
func (g PageGuard) Require(mode Mode, perms ...string) func(http.Handler) http.Handler {
	required := requiredPermissions(perms)
	mode = normalizeMode(mode)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := currentPrincipal(r.Context(), g.Logger)
			access, err := g.Authorizer.Access(r.Context(), principal)
			if err != nil {
				logger(g.Logger).Error("rbac page guard", slog.String("path", r.URL.Path), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			verdict := g.Authorizer.Check(access, mode, required...)
			switch verdict {
			case VerdictUnauthenticated:
				http.Redirect(w, r, withQuery(g.loginPath(), "next", r.URL.RequestURI()), http.StatusSeeOther)
			case VerdictForbidden:
				if g.Forbidden != nil {
					g.Forbidden.ServeHTTP(w, r)
					return
				}
				http.Redirect(w, r, withQuery(g.forbiddenPath(), "from", r.URL.RequestURI()), http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), access)))
			}
		})
	}
}

// Resolve stores the visitor's access snapshot in the request context
// without gating, for pages that only vary regions.
func (g PageGuard) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := g.Authorizer.Access(r.Context(), currentPrincipal(r.Context(), g.Logger))
		if err != nil {
			logger(g.Logger).Error("rbac resolve access", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), access)))
	})
}

func (g PageGuard) loginPath() string {
	if g.LoginPath == "" {
		return "/auth/login"
	}
	return g.LoginPath
}

func (g PageGuard) forbiddenPath() string {
	if g.ForbiddenPath == "" {
		return "/403"
	}
	return g.ForbiddenPath
}

func withQuery(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// Region gates a fragment of a page.
type Region struct {
	Require []string
	Mode    Mode
	// Loading is shown while the visitor's access is still unresolved.
	Loading template.HTML
	// Unauthenticated falls back to Forbidden when empty.
	Unauthenticated template.HTML
	Forbidden       template.HTML
}

// Render picks the placeholder, the fallback or children.
func (g Region) Render(access Access, children template.HTML) template.HTML {
	if !access.Resolved {
		return g.Loading
	}
	switch access.Verdict(g.Mode, g.Require...) {
	case VerdictUnauthenticated:
		if g.Unauthenticated != "" {
			return g.Unauthenticated
		}
		return g.Forbidden
	case VerdictForbidden:
		return g.Forbidden
	default:
		return children
	}
}

// RegionState names the branch a region takes for access: "loading",
// "unauthenticated", "forbidden" or "authorized".
func RegionState(access Access, mode Mode, perms ...string) string {
	if !access.Resolved {
		return "loading"
	}
	return access.Verdict(mode, perms...).String()
}

// TemplateFuncs exposes region checks to html/template.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"can": func(access Access, perms ...string) bool {
			return access.Can(perms...)
		},
		"canAny": func(access Access, perms ...string) bool {
			return access.CanAny(perms...)
		},
		"region": func(access Access, mode string, perms ...string) string {
			return RegionState(access, Mode(mode), perms...)
		},
	}
}
