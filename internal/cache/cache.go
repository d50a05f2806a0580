// Package cache keeps computed dashboards in Redis so repeated stats requests
// for the same user, period and day skip the aggregation.
//
// Every user has a generation counter that is part of each dashboard key.
// Writers bump it through Invalidate; readers fetch it before loading entries
// and pass it back to Get and Set. A dashboard computed while a write landed is
// therefore stored under a generation nobody will ask for again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "parentseed:dashboard:"
	// DashboardTTL bounds staleness should an invalidation be lost.
	DashboardTTL = 10 * time.Minute
	// generationTTL outlives every dashboard written under the generation.
	generationTTL = 24 * time.Hour
)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Dashboards stores JSON-encoded dashboards. A nil *Dashboards is a valid
// cache that never hits.
type Dashboards struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDashboards(rdb *redis.Client) *Dashboards {
	if rdb == nil {
		return nil
	}
	return &Dashboards{rdb: rdb, ttl: DashboardTTL}
}

// DashboardKey identifies one dashboard: user, generation, period name and
// the reference day in YYYY-MM-DD form.
func DashboardKey(userID uuid.UUID, gen int64, period, day string) string {
	return keyPrefix + userID.String() + ":g" + strconv.FormatInt(gen, 10) + ":" + period + ":" + day
}

func generationKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":gen"
}

func indexKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":keys"
}

// Generation returns the user's current generation, 0 if none was recorded.
func (d *Dashboards) Generation(ctx context.Context, userID uuid.UUID) (int64, error) {
	if d == nil {
		return 0, nil
	}
	gen, err := d.rdb.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// Get decodes the cached value into dest. A miss returns false with no error.
func (d *Dashboards) Get(ctx context.Context, userID uuid.UUID, gen int64, period, day string, dest any) (bool, error) {
	if d == nil {
		return false, nil
	}
	raw, err := d.rdb.Get(ctx, DashboardKey(userID, gen, period, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}
	return true, nil
}

func (d *Dashboards) Set(ctx context.Context, userID uuid.UUID, gen int64, period, day string, value any) error {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	key := DashboardKey(userID, gen, period, day)
	pipe := d.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, d.ttl)
	pipe.SAdd(ctx, indexKey(userID), key)
	pipe.Expire(ctx, indexKey(userID), d.ttl)
	pipe.Expire(ctx, generationKey(userID), generationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate advances the user's generation and drops the dashboards cached
// so far.
func (d *Dashboards) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if d == nil {
		return nil
	}
	gen := generationKey(userID)
	pipe := d.rdb.TxPipeline()
	pipe.Incr(ctx, gen)
	pipe.Expire(ctx, gen, generationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache bump generation: %w", err)
	}

	idx := indexKey(userID)
	keys, err := d.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("cache index: %w", err)
	}
	keys = append(keys, idx)
	if err := d.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
