package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/storefront-admin/storefront/internal/platform/httpx"
	"github.com/storefront-admin/storefront/internal/shared"
)

// Middleware wires RBAC authorization helpers for API handlers.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(ModeAny, perms)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(ModeAll, perms)
}

func (m Middleware) require(mode Mode, perms []string) func(http.Handler) http.Handler {
	required := requiredPermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := currentPrincipal(r.Context(), m.Logger)
			verdict, err := m.Authorizer.Authorize(r.Context(), principal, mode, required...)
			if err != nil {
				logger(m.Logger).Error("rbac authorize",
					slog.String("mode", string(mode)),
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			switch verdict {
			case VerdictUnauthenticated:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			case VerdictForbidden:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// PrincipalFromContext returns the principal bound to the request session,
// or nil for anonymous visitors.
func PrincipalFromContext(ctx context.Context) *Principal {
	return currentPrincipal(ctx, nil)
}

func currentPrincipal(ctx context.Context, log *slog.Logger) *Principal {
	id, err := shared.SessionUserID(ctx)
	if err != nil {
		if log != nil && !errors.Is(err, shared.ErrAnonymous) {
			log.Warn("rbac session user", slog.Any("error", err))
		}
		return nil
	}
	return &Principal{ID: id}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
