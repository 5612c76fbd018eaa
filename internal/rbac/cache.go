package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheEpochKey   = "rbac:epoch"
	cacheKeyPrefix  = "rbac:perms"
	userVersionKeyF = "rbac:user:%s:ver"

	// sharedLoadTimeout bounds a load shared by several waiters once it no
	// longer follows any single caller's context.
	sharedLoadTimeout = 10 * time.Second
)

// Cache lookup outcomes reported to a CacheRecorder.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// CacheRecorder observes snapshot lookups.
type CacheRecorder interface {
	RecordCacheLookup(result string)
}

// CachedResolver keeps short-lived permission snapshots in Redis. Snapshot
// keys embed a global epoch and a per-user version; bumping either one makes
// every older snapshot unreachable. Redis failures fall through to the
// wrapped resolver.
type CachedResolver struct {
	next     Resolver
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	recorder CacheRecorder
	group    singleflight.Group
}

// NewCachedResolver wraps next with a Redis snapshot cache.
func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, client: client, ttl: ttl, logger: logger}
}

// WithRecorder reports lookup outcomes to r.
func (c *CachedResolver) WithRecorder(r CacheRecorder) *CachedResolver {
	c.recorder = r
	return c
}

func (c *CachedResolver) observe(result string) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(result)
	}
}

// Resolve returns the cached snapshot for userID or loads and stores it.
func (c *CachedResolver) Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return c.next.Resolve(ctx, userID)
	}
	key, err := c.snapshotKey(ctx, userID)
	if err != nil {
		c.logger.Warn("rbac cache version lookup", slog.Any("error", err))
		c.observe(CacheError)
		return c.next.Resolve(ctx, userID)
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var names []string
		if jsonErr := json.Unmarshal(raw, &names); jsonErr == nil {
			c.observe(CacheHit)
			return NewPermissionSet(names...), nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rbac cache read", slog.Any("error", err))
		c.observe(CacheError)
		return c.next.Resolve(ctx, userID)
	}
	c.observe(CacheMiss)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		set, err := c.next.Resolve(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, key, set)
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, &StoreError{Op: "resolve", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

// InvalidateUser drops every snapshot of userID.
func (c *CachedResolver) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, fmt.Sprintf(userVersionKeyF, userID)).Err()
}

// InvalidateAll drops every snapshot.
func (c *CachedResolver) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheEpochKey).Err()
}

func (c *CachedResolver) snapshotKey(ctx context.Context, userID uuid.UUID) (string, error) {
	vals, err := c.client.MGet(ctx, cacheEpochKey, fmt.Sprintf(userVersionKeyF, userID)).Result()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{cacheKeyPrefix, versionToken(vals[0]), userID.String(), versionToken(vals[1])}, ":"), nil
}

func (c *CachedResolver) store(ctx context.Context, key string, set PermissionSet) {
	raw, err := json.Marshal(set.Names())
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("rbac cache write", slog.Any("error", err))
	}
}

func versionToken(v interface{}) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return "0"
	}
	return s
}
