package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	set   PermissionSet
	err   error
	calls int
}

func (s *stubResolver) Resolve(context.Context, uuid.UUID) (PermissionSet, error) {
	s.calls++
	return s.set, s.err
}

type decisionLog struct {
	entries []string
}

func (d *decisionLog) RecordDecision(mode Mode, verdict Verdict) {
	d.entries = append(d.entries, string(mode)+":"+verdict.String())
}

func TestEvaluate(t *testing.T) {
	granted := NewPermissionSet("orders:self:read", "cart:self:write")

	tests := []struct {
		name     string
		mode     Mode
		required []string
		want     Verdict
	}{
		{"all satisfied", ModeAll, []string{"orders:self:read", "cart:self:write"}, VerdictAuthorized},
		{"all missing one", ModeAll, []string{"orders:self:read", "admin:access"}, VerdictForbidden},
		{"all empty", ModeAll, nil, VerdictAuthorized},
		{"default mode is all", "", []string{"orders:self:read", "admin:access"}, VerdictForbidden},
		{"any satisfied", ModeAny, []string{"admin:access", "cart:self:write"}, VerdictAuthorized},
		{"any none", ModeAny, []string{"admin:access"}, VerdictForbidden},
		{"any empty", ModeAny, nil, VerdictForbidden},
		{"names are trimmed", ModeAll, []string{" orders:self:read "}, VerdictAuthorized},
		{"names are case sensitive", ModeAll, []string{"Orders:Self:Read"}, VerdictForbidden},
		{"all blank name", ModeAll, []string{""}, VerdictForbidden},
		{"all whitespace name", ModeAll, []string{"  "}, VerdictForbidden},
		{"all blank beside held", ModeAll, []string{"orders:self:read", ""}, VerdictForbidden},
		{"any blank name", ModeAny, []string{""}, VerdictForbidden},
		{"any blank beside held", ModeAny, []string{"", "cart:self:write"}, VerdictAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(granted, tt.mode, tt.required))
		})
	}
}

func TestAuthorizeNilPrincipalSkipsResolution(t *testing.T) {
	resolver := &stubResolver{set: NewPermissionSet("admin:access")}
	authz := NewAuthorizer(resolver, nil)

	for _, mode := range []Mode{ModeAll, ModeAny, ""} {
		for _, required := range [][]string{nil, {"admin:access"}, {"admin:access", "users:any:ban"}} {
			verdict, err := authz.Authorize(context.Background(), nil, mode, required...)
			require.NoError(t, err)
			assert.Equal(t, VerdictUnauthenticated, verdict)
		}
	}
	assert.Zero(t, resolver.calls)
}

func TestAuthorizeEmptyRequirement(t *testing.T) {
	resolver := &stubResolver{set: PermissionSet{}}
	authz := NewAuthorizer(resolver, nil)
	p := &Principal{ID: uuid.New()}

	verdict, err := authz.Authorize(context.Background(), p, ModeAll)
	require.NoError(t, err)
	assert.Equal(t, VerdictAuthorized, verdict)

	verdict, err = authz.Authorize(context.Background(), p, ModeAny)
	require.NoError(t, err)
	assert.Equal(t, VerdictForbidden, verdict)
}

func TestAuthorizeBlankRequirementFailsClosed(t *testing.T) {
	authz := NewAuthorizer(&stubResolver{set: PermissionSet{}}, nil)
	p := &Principal{ID: uuid.New()}

	for _, mode := range []Mode{ModeAll, ModeAny} {
		for _, name := range []string{"", "  "} {
			verdict, err := authz.Authorize(context.Background(), p, mode, name)
			require.NoError(t, err)
			assert.Equal(t, VerdictForbidden, verdict, "mode=%s name=%q", mode, name)
		}
	}
}

func TestAuthorizeResolvesOnce(t *testing.T) {
	resolver := &stubResolver{set: NewPermissionSet("a:b", "c:d")}
	authz := NewAuthorizer(resolver, nil)

	_, err := authz.Authorize(context.Background(), &Principal{ID: uuid.New()}, ModeAll, "a:b", "c:d", "e:f")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}

func TestAuthorizePropagatesResolverError(t *testing.T) {
	cause := &StoreError{Op: "roles of", Err: errors.New("timeout")}
	log := &decisionLog{}
	authz := NewAuthorizer(&stubResolver{err: cause}, log)

	_, err := authz.Authorize(context.Background(), &Principal{ID: uuid.New()}, ModeAny, "a:b")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, log.entries)
}

func TestAuthorizeRecordsDecisions(t *testing.T) {
	log := &decisionLog{}
	authz := NewAuthorizer(&stubResolver{set: NewPermissionSet("a:b")}, log)
	ctx := context.Background()

	_, _ = authz.Authorize(ctx, nil, ModeAny, "a:b")
	_, _ = authz.Authorize(ctx, &Principal{ID: uuid.New()}, "", "a:b")
	_, _ = authz.Authorize(ctx, &Principal{ID: uuid.New()}, ModeAll, "x:y")

	assert.Equal(t, []string{"any:unauthenticated", "all:authorized", "all:forbidden"}, log.entries)
}

func TestAccessSnapshot(t *testing.T) {
	authz := NewAuthorizer(&stubResolver{set: NewPermissionSet("orders:any:read")}, nil)

	anon, err := authz.Access(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, anon.Resolved)
	assert.Equal(t, VerdictUnauthenticated, anon.Verdict(ModeAll))
	assert.False(t, anon.Can())

	access, err := authz.Access(context.Background(), &Principal{ID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, access.Can("orders:any:read"))
	assert.False(t, access.Can("orders:any:read", "orders:any:refund"))
	assert.True(t, access.CanAny("orders:any:read", "orders:any:refund"))
	assert.False(t, access.CanAny())
}
