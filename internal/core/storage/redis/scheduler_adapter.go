package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

const connectPingTimeout = 5 * time.Second

// releaseLockScript deletes the lock only when the caller still owns it,
// so an expired-and-reacquired lock is never released by the old holder.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// SchedulerAdapter implements storage.SchedulerStore on Redis: watermark
// timestamps, per-cycle stats, and the cluster-wide execution lock.
type SchedulerAdapter struct {
	rdb *goredis.Client
}

// NewClient connects to Redis and verifies connectivity.
func NewClient(addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("[Redis] Connected", "addr", addr, "db", db)
	return rdb, nil
}

// NewSchedulerAdapter wraps an existing client.
func NewSchedulerAdapter(rdb *goredis.Client) *SchedulerAdapter {
	return &SchedulerAdapter{rdb: rdb}
}

func watermarkKey(taskID string) string { return "vitalsum:task:" + taskID + ":watermark" }
func statsKey(taskID string) string     { return "vitalsum:task:" + taskID + ":stats" }
func lockKey(taskID string) string      { return "vitalsum:task:" + taskID + ":lock" }

// Watermark returns the task's last processed watermark.
// Stored as unix seconds, matching what SetWatermark writes.
func (a *SchedulerAdapter) Watermark(ctx context.Context, taskID string) (time.Time, error) {
	val, err := a.rdb.Get(ctx, watermarkKey(taskID)).Result()
	if err == goredis.Nil {
		return time.Time{}, storage.ErrNoWatermark
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark for %s: %w", taskID, err)
	}
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark %q for %s: %w", val, taskID, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// SetWatermark advances the task's watermark.
func (a *SchedulerAdapter) SetWatermark(ctx context.Context, taskID string, t time.Time) error {
	if err := a.rdb.Set(ctx, watermarkKey(taskID), strconv.FormatInt(t.Unix(), 10), 0).Err(); err != nil {
		return fmt.Errorf("write watermark for %s: %w", taskID, err)
	}
	return nil
}

// SaveStats persists one cycle's stats as JSON, overwriting the previous
// cycle's entry.
func (a *SchedulerAdapter) SaveStats(ctx context.Context, taskID string, stats rollup.ProcessingStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats for %s: %w", taskID, err)
	}
	if err := a.rdb.Set(ctx, statsKey(taskID), raw, 0).Err(); err != nil {
		return fmt.Errorf("write stats for %s: %w", taskID, err)
	}
	return nil
}

// LastStats returns the most recently saved cycle stats.
func (a *SchedulerAdapter) LastStats(ctx context.Context, taskID string) (rollup.ProcessingStats, bool, error) {
	raw, err := a.rdb.Get(ctx, statsKey(taskID)).Bytes()
	if err == goredis.Nil {
		return rollup.ProcessingStats{}, false, nil
	}
	if err != nil {
		return rollup.ProcessingStats{}, false, fmt.Errorf("read stats for %s: %w", taskID, err)
	}
	var stats rollup.ProcessingStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return rollup.ProcessingStats{}, false, fmt.Errorf("unmarshal stats for %s: %w", taskID, err)
	}
	return stats, true, nil
}

// AcquireLock takes the execution lock with SET NX. The returned token is
// required to release.
func (a *SchedulerAdapter) AcquireLock(ctx context.Context, taskID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := a.rdb.SetNX(ctx, lockKey(taskID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock for %s: %w", taskID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases the lock if the token still owns it.
func (a *SchedulerAdapter) ReleaseLock(ctx context.Context, taskID, token string) error {
	if err := a.rdb.Eval(ctx, releaseLockScript, []string{lockKey(taskID)}, token).Err(); err != nil {
		return fmt.Errorf("release lock for %s: %w", taskID, err)
	}
	return nil
}
