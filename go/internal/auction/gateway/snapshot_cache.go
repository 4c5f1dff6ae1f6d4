package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SnapshotCache holds the latest known snapshot per lot. Put never replaces
// a snapshot with an older version.
type SnapshotCache interface {
	Get(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error)
	Put(ctx context.Context, snap models.LotSnapshot) error
}

// ErrCacheMiss is returned by Get when nothing is cached for the lot.
var ErrCacheMiss = errors.New("snapshot not cached")

// CacheSink keeps a SnapshotCache current from lot events.
type CacheSink struct {
	cache SnapshotCache
}

func NewCacheSink(cache SnapshotCache) *CacheSink {
	return &CacheSink{cache: cache}
}

// Publish writes the state carried by the newest event. All events of one
// mutation share a version, so the last one is enough.
func (s *CacheSink) Publish(ctx context.Context, lotID uuid.UUID, evs []models.LotEvent) error {
	var latest *models.LotEvent
	for i := range evs {
		if evs[i].Type.Mutating() && (latest == nil || evs[i].Version >= latest.Version) {
			latest = &evs[i]
		}
	}
	if latest == nil {
		return nil
	}
	return s.cache.Put(ctx, models.LotSnapshot{
		LotID:      lotID,
		Version:    latest.Version,
		LotState:   latest.State,
		ServerTime: latest.OccurredAt,
	})
}

// putIfNewer stores the snapshot only when no equal or newer version is held.
var putIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type RedisCacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		KeyPrefix: "lot:snapshot:",
		TTL:       24 * time.Hour,
	}
}

// RedisSnapshotCache stores snapshots as hashes of version and JSON body.
type RedisSnapshotCache struct {
	client redis.UniversalClient
	cfg    RedisCacheConfig
}

func NewRedisSnapshotCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, cfg: cfg}
}

func (c *RedisSnapshotCache) key(lotID uuid.UUID) string {
	return c.cfg.KeyPrefix + lotID.String()
}

func (c *RedisSnapshotCache) Get(ctx context.Context, lotID uuid.UUID) (*models.LotSnapshot, error) {
	body, err := c.client.HGet(ctx, c.key(lotID), "body").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var snap models.LotSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

func (c *RedisSnapshotCache) Put(ctx context.Context, snap models.LotSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	stored, err := putIfNewer.Run(ctx, c.client,
		[]string{c.key(snap.LotID)},
		snap.Version, body, c.cfg.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis put snapshot: %w", err)
	}
	if stored == 0 {
		log.Debug().
			Str("lot_id", snap.LotID.String()).
			Int64("version", snap.Version).
			Msg("cached snapshot is newer, skipped")
	}
	return nil
}

// MemorySnapshotCache is the in-process SnapshotCache used when redis is not configured.
type MemorySnapshotCache struct {
	mu    sync.RWMutex
	snaps map[uuid.UUID]models.LotSnapshot
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{snaps: make(map[uuid.UUID]models.LotSnapshot)}
}

func (c *MemorySnapshotCache) Get(_ context.Context, lotID uuid.UUID) (*models.LotSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[lotID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &snap, nil
}

func (c *MemorySnapshotCache) Put(_ context.Context, snap models.LotSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.snaps[snap.LotID]; ok && cur.Version >= snap.Version {
		return nil
	}
	c.snaps[snap.LotID] = snap
	return nil
}
