// Package cache keeps hot column permission lookups out of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

const (
	keyPrefix        = "estimate-engine:perm:"
	generationPrefix = "estimate-engine:perm-gen:"
)

// absent is stored when a (column, role) pair has no explicit record.
const absent = "null"

// generationGrace keeps generation counters alive past every entry written
// under an older generation.
const generationGrace = time.Hour

// Lookup is the result of a cache read. A miss carries the generation it
// observed; pass it back to Set so a fill computed before an invalidation
// never becomes visible.
type Lookup struct {
	// Perm is nil when the pair is known to have no explicit record.
	Perm  *models.ColumnRolePermission
	Found bool

	generation int64
	valid      bool
}

// PermissionCache caches explicit permission records per (column, role),
// including the fact that none exists. Failures are logged and treated as
// misses; the database stays the source of truth.
type PermissionCache interface {
	Get(ctx context.Context, columnID uuid.UUID, role models.Role) Lookup
	// Set stores perm under the generation observed by miss. It is dropped
	// when the pair was invalidated after that read.
	Set(ctx context.Context, columnID uuid.UUID, role models.Role, miss Lookup, perm *models.ColumnRolePermission)
	// Invalidate drops the given roles of a column, or every role when none are given.
	Invalidate(ctx context.Context, columnID uuid.UUID, roles ...models.Role)
}

type redisPermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPermissionCache returns a redis-backed cache, or a no-op cache when
// client is nil.
func NewPermissionCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) PermissionCache {
	if client == nil {
		return NewNoopPermissionCache()
	}
	return &redisPermissionCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("permission_cache"),
	}
}

func permissionKey(columnID uuid.UUID, role models.Role, generation int64) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, columnID, role, generation)
}

func generationKey(columnID uuid.UUID, role models.Role) string {
	return fmt.Sprintf("%s%s:%s", generationPrefix, columnID, role)
}

func (c *redisPermissionCache) generation(ctx context.Context, columnID uuid.UUID, role models.Role) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(columnID, role)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *redisPermissionCache) Get(ctx context.Context, columnID uuid.UUID, role models.Role) Lookup {
	gen, err := c.generation(ctx, columnID, role)
	if err != nil {
		c.logger.Warn("Failed to read permission cache generation",
			zap.String("column_id", columnID.String()),
			zap.String("role", string(role)),
			zap.Error(err))
		return Lookup{}
	}
	miss := Lookup{generation: gen, valid: true}

	raw, err := c.client.Get(ctx, permissionKey(columnID, role, gen)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read permission cache",
				zap.String("column_id", columnID.String()),
				zap.String("role", string(role)),
				zap.Error(err))
		}
		return miss
	}

	if raw == absent {
		return Lookup{Found: true, generation: gen, valid: true}
	}

	var perm models.ColumnRolePermission
	if err := json.Unmarshal([]byte(raw), &perm); err != nil {
		c.logger.Warn("Discarding malformed permission cache entry",
			zap.String("column_id", columnID.String()),
			zap.Error(err))
		return miss
	}
	return Lookup{Perm: &perm, Found: true, generation: gen, valid: true}
}

func (c *redisPermissionCache) Set(ctx context.Context, columnID uuid.UUID, role models.Role, miss Lookup, perm *models.ColumnRolePermission) {
	if !miss.valid {
		return
	}

	value := absent
	if perm != nil {
		data, err := json.Marshal(perm)
		if err != nil {
			return
		}
		value = string(data)
	}

	// An invalidation after the read moved readers to a newer generation,
	// so this entry is written under a key nobody reads.
	if err := c.client.Set(ctx, permissionKey(columnID, role, miss.generation), value, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write permission cache",
			zap.String("column_id", columnID.String()),
			zap.String("role", string(role)),
			zap.Error(err))
	}
}

func (c *redisPermissionCache) Invalidate(ctx context.Context, columnID uuid.UUID, roles ...models.Role) {
	if len(roles) == 0 {
		roles = models.ValidRoles
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, role := range roles {
			key := generationKey(columnID, role)
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, c.ttl+generationGrace)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to invalidate permission cache",
			zap.String("column_id", columnID.String()),
			zap.Error(err))
	}
}

var _ PermissionCache = (*redisPermissionCache)(nil)

type noopPermissionCache struct{}

// NewNoopPermissionCache returns a cache that never hits.
func NewNoopPermissionCache() PermissionCache {
	return noopPermissionCache{}
}

func (noopPermissionCache) Get(context.Context, uuid.UUID, models.Role) Lookup {
	return Lookup{}
}

func (noopPermissionCache) Set(context.Context, uuid.UUID, models.Role, Lookup, *models.ColumnRolePermission) {
}

func (noopPermissionCache) Invalidate(context.Context, uuid.UUID, ...models.Role) {}
