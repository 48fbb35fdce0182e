package awards

import (
	"context"
	"fmt"
	"time"

	"github.com/Dalmocabral/crewcenter/utils"
)

// ProgressCache caches a pilot's award overview. Set takes the Version read
// before loading rows and drops them if an Invalidate happened since.
type ProgressCache interface {
	Get(ctx context.Context, pilotID uint) ([]AwardProgress, bool)
	Version(ctx context.Context, pilotID uint) int64
	Set(ctx context.Context, pilotID uint, version int64, rows []AwardProgress)
	Invalidate(ctx context.Context, pilotID uint)
}

// RedisProgressCache stores overviews as JSON under progress:<pilot>:awards,
// guarded by a per-pilot counter at progress_version:<pilot>.
type RedisProgressCache struct {
	cache *utils.Cache
	ttl   time.Duration
}

func NewRedisProgressCache(cache *utils.Cache, ttl time.Duration) *RedisProgressCache {
	return &RedisProgressCache{cache: cache, ttl: ttl}
}

func progressPrefix(pilotID uint) string {
	return fmt.Sprintf("progress:%d:", pilotID)
}

func progressVersionKey(pilotID uint) string {
	return fmt.Sprintf("progress_version:%d", pilotID)
}

func (c *RedisProgressCache) Get(ctx context.Context, pilotID uint) ([]AwardProgress, bool) {
	var rows []AwardProgress
	if !c.cache.GetJSON(ctx, progressPrefix(pilotID)+"awards", &rows) {
		return nil, false
	}
	return rows, true
}

func (c *RedisProgressCache) Version(ctx context.Context, pilotID uint) int64 {
	return c.cache.Version(ctx, progressVersionKey(pilotID))
}

func (c *RedisProgressCache) Set(ctx context.Context, pilotID uint, version int64, rows []AwardProgress) {
	c.cache.SetJSONIfVersion(ctx, progressVersionKey(pilotID), version, progressPrefix(pilotID)+"awards", rows, c.ttl)
}

// Invalidate bumps the version before deleting so a read already in flight
// cannot write its rows back.
func (c *RedisProgressCache) Invalidate(ctx context.Context, pilotID uint) {
	c.cache.BumpVersion(ctx, progressVersionKey(pilotID))
	c.cache.InvalidateByPrefix(ctx, progressPrefix(pilotID))
}

type noopCache struct{}

func (noopCache) Get(context.Context, uint) ([]AwardProgress, bool) { return nil, false }
func (noopCache) Version(context.Context, uint) int64 { return 0 }
func (noopCache) Set(context.Context, uint, int64, []AwardProgress) {}
func (noopCache) Invalidate(context.Context, uint) {}
