package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cargoride/internal/models"
	"cargoride/pkg/logger"
)

const (
	serviceCacheTTL = 30 * time.Second
	// generationTTL must outlive serviceCacheTTL by a wide margin: an expired generation reads
	// as "", and a snapshot cached under "" must have expired before that can happen.
	generationTTL = 24 * time.Hour
)

// SnapshotCache is the subset of pkg/cache.RedisCache used for service reads.
type SnapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// serviceCache is a read-through cache of service snapshots. Entries are keyed by the
// service's current generation, which every committed write replaces. A reader that loaded
// a snapshot before a write can only store it under the generation it started with, which
// no later reader looks up.
type serviceCache struct {
	cache  SnapshotCache
	logger *logger.Logger
}

func generationKey(id string) string {
	return "service:" + id + ":gen"
}

func snapshotKey(id, generation string) string {
	return "service:" + id + ":" + generation
}

// generation returns "" when the service was never written through this cache or its
// generation expired.
func (c *serviceCache) generation(ctx context.Context, id string) string {
	var gen string
	if err := c.cache.Get(ctx, generationKey(id), &gen); err != nil {
		return ""
	}
	return gen
}

// get returns the cached snapshot and the generation a miss must be stored under.
func (c *serviceCache) get(ctx context.Context, id string) (*models.Service, string, bool) {
	gen := c.generation(ctx, id)
	var cached models.Service
	if err := c.cache.Get(ctx, snapshotKey(id, gen), &cached); err != nil {
		return nil, gen, false
	}
	return &cached, gen, true
}

func (c *serviceCache) put(ctx context.Context, gen string, service *models.Service) {
	if err := c.cache.Set(ctx, snapshotKey(service.ID, gen), service, serviceCacheTTL); err != nil {
		c.logger.WithError(err).Debug("Failed to cache service")
	}
}

// invalidate moves each service to a fresh generation. Call it only after the write committed.
func (c *serviceCache) invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := c.cache.Set(ctx, generationKey(id), uuid.NewString(), generationTTL); err != nil {
			c.logger.WithServiceID(id).WithError(err).Warn("Failed to invalidate service cache")
		}
	}
}
