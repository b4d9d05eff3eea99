package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ttlSeen = 30 * 24 * time.Hour

// RedisCache keeps seen-fragment keys and scrape cursors in Redis so they
// survive restarts and are shared when several keepers poll the same feed.
type RedisCache struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisCache connects to the Redis instance named by redisURL
// (redis:// or rediss://) and verifies it responds.
func NewRedisCache(ctx context.Context, redisURL string, log *zap.Logger) (*RedisCache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, log: log}, nil
}

func (c *RedisCache) keySeen(id string) string      { return "gk:seen:" + id }
func (c *RedisCache) keyCursor(leagueID int) string { return "gk:cursor:" + strconv.Itoa(leagueID) }

// SeenAndRecord treats a Redis failure as unseen so the pipeline keeps
// moving; the ledger absorbs the resulting duplicates.
func (c *RedisCache) SeenAndRecord(ctx context.Context, id string) bool {
	ok, err := c.rdb.SetNX(ctx, c.keySeen(id), 1, ttlSeen).Result()
	if err != nil {
		c.log.Warn("seen cache unavailable, processing anyway", zap.Error(err))
		return false
	}
	return !ok
}

func (c *RedisCache) Unrecord(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, c.keySeen(id)).Err(); err != nil {
		c.log.Warn("seen cache unrecord failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *RedisCache) Cursor(ctx context.Context, leagueID int) (string, error) {
	v, err := c.rdb.Get(ctx, c.keyCursor(leagueID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return v, nil
}

// SetCursor stores the opaque feed cursor for a league. Cursors never
// expire; they are the scrape position, not cache state.
func (c *RedisCache) SetCursor(ctx context.Context, leagueID int, cursor string) error {
	if strings.TrimSpace(cursor) == "" {
		return nil
	}
	if err := c.rdb.Set(ctx, c.keyCursor(leagueID), cursor, 0).Err(); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
