package rbac

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-admin/storefront/internal/platform/httpx"
	"github.com/storefront-admin/storefront/internal/shared"
)

// requestAs builds a request carrying a session bound to userID. An empty
// userID yields an anonymous session.
func requestAs(t *testing.T, method, target string, body io.Reader, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	req := httptest.NewRequest(method, target, body)
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareVerdicts(t *testing.T) {
	userID := uuid.New().String()
	tests := []struct {
		name     string
		user     string
		resolver *stubResolver
		require  func(Middleware) func(http.Handler) http.Handler
		status   int
		title    string
	}{
		{
			name:     "anonymous",
			resolver: &stubResolver{set: NewPermissionSet("admin:access")},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAll("admin:access") },
			status:   http.StatusUnauthorized,
			title:    "Unauthorized",
		},
		{
			name:     "unparseable session user",
			user:     "42",
			resolver: &stubResolver{set: NewPermissionSet("admin:access")},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAll("admin:access") },
			status:   http.StatusUnauthorized,
			title:    "Unauthorized",
		},
		{
			name:     "missing permission",
			user:     userID,
			resolver: &stubResolver{set: NewPermissionSet("orders:self:read")},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAll("admin:access") },
			status:   http.StatusForbidden,
			title:    "Forbidden",
		},
		{
			name:     "any of",
			user:     userID,
			resolver: &stubResolver{set: NewPermissionSet("orders:any:read")},
			require: func(m Middleware) func(http.Handler) http.Handler {
				return m.RequireAny("orders:any:update", "orders:any:read")
			},
			status: http.StatusOK,
		},
		{
			name:     "any of nothing",
			user:     userID,
			resolver: &stubResolver{set: NewPermissionSet("orders:any:read")},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAny() },
			status:   http.StatusForbidden,
			title:    "Forbidden",
		},
		{
			name:     "blank requirement",
			user:     userID,
			resolver: &stubResolver{set: PermissionSet{}},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAll("") },
			status:   http.StatusForbidden,
			title:    "Forbidden",
		},
		{
			name:     "store unavailable",
			user:     userID,
			resolver: &stubResolver{err: &StoreError{Op: "roles of", Err: errors.New("dial tcp")}},
			require:  func(m Middleware) func(http.Handler) http.Handler { return m.RequireAll("admin:access") },
			status:   http.StatusInternalServerError,
			title:    "Internal Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := Middleware{Authorizer: NewAuthorizer(tt.resolver, nil)}
			rec := httptest.NewRecorder()
			tt.require(mw)(okHandler()).ServeHTTP(rec, requestAs(t, http.MethodGet, "/admin/rbac/roles", nil, tt.user))

			assert.Equal(t, tt.status, rec.Code)
			if tt.title == "" {
				return
			}
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.title, problem.Title)
			assert.Equal(t, tt.status, problem.Status)
		})
	}
}

func TestMiddlewareWithoutSession(t *testing.T) {
	resolver := &stubResolver{}
	mw := Middleware{Authorizer: NewAuthorizer(resolver, nil)}
	rec := httptest.NewRecorder()

	mw.RequireAll("admin:access")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, resolver.calls)
}
