package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	hashKeyPrefix   = "dedup:hashes:"
	recentKeyPrefix = "dedup:recent:"
)

// RedisLedger is the shared deduplication backend. State survives
// process restarts and is visible to every service instance, so a
// client reconnecting through a different instance still cannot replay
// transcript text.
type RedisLedger struct {
	client     *redis.Client
	recentSize int
	ttl        time.Duration
}

// RedisConfig contains redis ledger configuration
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	RecentSize int
	TTL        time.Duration
}

// NewRedisLedger connects to redis and verifies the connection
func NewRedisLedger(ctx context.Context, config RedisConfig) (*RedisLedger, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	if config.RecentSize <= 0 {
		config.RecentSize = 10
	}

	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return &RedisLedger{
		client:     client,
		recentSize: config.RecentSize,
		ttl:        config.TTL,
	}, nil
}

// FirstSeen records text for the meeting and reports whether it is new.
// The hash set is the authority; the recent list mirrors the newest
// normalized texts for inspection.
func (l *RedisLedger) FirstSeen(ctx context.Context, meetingID, text string) (bool, error) {
	if Rejectable(text) {
		return false, nil
	}

	hashKey := hashKeyPrefix + meetingID
	recentKey := recentKeyPrefix + meetingID

	added, err := l.client.SAdd(ctx, hashKey, HashText(text)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record text hash: %w", err)
	}

	if added == 0 {
		return false, nil
	}

	pipe := l.client.Pipeline()
	pipe.LPush(ctx, recentKey, Normalize(text))
	pipe.LTrim(ctx, recentKey, 0, int64(l.recentSize-1))
	pipe.Expire(ctx, hashKey, l.ttl)
	pipe.Expire(ctx, recentKey, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("failed to update recent ring: %w", err)
	}

	return true, nil
}

// ForgetMeeting drops all state for a meeting
func (l *RedisLedger) ForgetMeeting(ctx context.Context, meetingID string) error {
	if err := l.client.Del(ctx, hashKeyPrefix+meetingID, recentKeyPrefix+meetingID).Err(); err != nil {
		return fmt.Errorf("failed to delete meeting keys: %w", err)
	}

	return nil
}

// Close closes the redis connection
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
