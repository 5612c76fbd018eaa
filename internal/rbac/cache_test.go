package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedResolver(t *testing.T, next Resolver) (*CachedResolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedResolver(next, client, 30*time.Second, nil), mr
}

func TestCachedResolverServesSnapshot(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("orders:any:read")}
	cache, _ := newCachedResolver(t, inner)
	ctx := context.Background()
	userID := uuid.New()

	first, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	second, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedResolverInvalidateUser(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("orders:any:read")}
	cache, _ := newCachedResolver(t, inner)
	ctx := context.Background()
	userID, other := uuid.New(), uuid.New()

	_, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, other)
	require.NoError(t, err)

	inner.set = PermissionSet{}
	require.NoError(t, cache.InvalidateUser(ctx, userID))

	set, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = cache.Resolve(ctx, other)
	require.NoError(t, err)
	assert.True(t, set.Has("orders:any:read"))
	assert.Equal(t, 3, inner.calls)
}

func TestCachedResolverInvalidateAll(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("a:b")}
	cache, _ := newCachedResolver(t, inner)
	ctx := context.Background()
	userID := uuid.New()

	_, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateAll(ctx))
	_, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedResolverExpires(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("a:b")}
	cache, mr := newCachedResolver(t, inner)
	ctx := context.Background()
	userID := uuid.New()

	_, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	_, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedResolverFallsThroughWhenRedisIsDown(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("a:b")}
	cache, mr := newCachedResolver(t, inner)
	mr.Close()

	set, err := cache.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, set.Has("a:b"))
	assert.Equal(t, 1, inner.calls)
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	inner := &stubResolver{err: &StoreError{Op: "roles of", Err: context.DeadlineExceeded}}
	cache, _ := newCachedResolver(t, inner)
	ctx := context.Background()
	userID := uuid.New()

	_, err := cache.Resolve(ctx, userID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	inner.err = nil
	inner.set = NewPermissionSet("a:b")
	set, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, set.Has("a:b"))
}

func TestServiceMutationInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	cache, _ := newCachedResolver(t, f.service)
	f.service.WithInvalidator(cache)
	ctx := context.Background()
	userID := uuid.New()

	f.assign(t, userID, RoleCustomer)
	set, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	require.True(t, set.Has("cart:self:read"))

	require.NoError(t, f.service.RemoveRole(ctx, RoleAssignment{UserID: userID, RoleID: f.role(t, RoleCustomer).ID}))

	set, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, set)
}

type lookupCounter map[string]int

func (c lookupCounter) RecordCacheLookup(result string) {
	c[result]++
}

func TestCachedResolverReportsLookups(t *testing.T) {
	inner := &stubResolver{set: NewPermissionSet("a:b")}
	cache, mr := newCachedResolver(t, inner)
	counts := lookupCounter{}
	cache.WithRecorder(counts)
	ctx := context.Background()
	userID := uuid.New()

	_, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)
	mr.Close()
	_, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, lookupCounter{CacheMiss: 1, CacheHit: 1, CacheError: 1}, counts)
}

// blockingResolver holds each load until release closes, giving up early only
// when its own context ends.
type blockingResolver struct {
	set     PermissionSet
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingResolver) Resolve(ctx context.Context, _ uuid.UUID) (PermissionSet, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, &StoreError{Op: "roles of", Err: ctx.Err()}
	case <-b.release:
		return b.set, nil
	}
}

func TestCachedResolverCancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &blockingResolver{
		set:     NewPermissionSet("a:b"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache, _ := newCachedResolver(t, inner)
	userID := uuid.New()

	type result struct {
		set PermissionSet
		err error
	}
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	resA := make(chan result, 1)
	go func() {
		set, err := cache.Resolve(ctxA, userID)
		resA <- result{set, err}
	}()
	<-inner.started

	resB := make(chan result, 1)
	go func() {
		set, err := cache.Resolve(context.Background(), userID)
		resB <- result{set, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	a := <-resA
	assert.ErrorIs(t, a.err, context.Canceled)

	close(inner.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.True(t, b.set.Has("a:b"))
}

func TestBootstrapInvalidatesCachedSnapshots(t *testing.T) {
	f := newFixture(t)
	cache, _ := newCachedResolver(t, f.service)
	f.service.WithInvalidator(cache)
	ctx := context.Background()
	userID := uuid.New()

	f.assign(t, userID, RoleCustomer)
	set, err := cache.Resolve(ctx, userID)
	require.NoError(t, err)
	require.True(t, set.Has("cart:self:read"))

	catalog := DefaultCatalog()
	for i := range catalog.Roles {
		if catalog.Roles[i].Name == RoleCustomer {
			catalog.Roles[i].Permissions = Explicit("orders:self:read")
		}
	}
	require.NoError(t, f.service.Bootstrap(ctx, catalog))

	set, err = cache.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.False(t, set.Has("cart:self:read"))
	assert.True(t, set.Has("orders:self:read"))
}
