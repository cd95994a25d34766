package tracker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// KEYS[1] address key
// ARGV[1] cutoff (ms), ARGV[2] timestamp (ms), ARGV[3] member, ARGV[4] window (ms)
var recordScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return redis.call('ZCARD', KEYS[1])
`)

type redis_impl struct {
	client   redis.UniversalClient
	prefix   string
	now      func() time.Time
	instance int64
	seq      atomic.Uint64
}

func (t *redis_impl) RecordAndCount(address string, timestamp time.Time, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	cutoff := t.now().Add(-window).UnixMilli()
	// members must be unique, equal timestamps are distinct failures
	member := fmt.Sprintf("%d:%d:%d", timestamp.UnixNano(), t.instance, t.seq.Add(1))
	cnt, err := recordScript.Run(ctx, t.client, []string{t.key(address)},
		cutoff, timestamp.UnixMilli(), member, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("cannot record failure for %s: %w", address, err)
	}
	return cnt, nil
}

func (t *redis_impl) Count(address string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	cutoff := t.now().Add(-window).UnixMilli()
	cnt, err := t.client.ZCount(ctx, t.key(address), fmt.Sprint(cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("cannot count failures for %s: %w", address, err)
	}
	return int(cnt), nil
}

func (t *redis_impl) Compact(window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	cutoff := fmt.Sprintf("(%d", t.now().Add(-window).UnixMilli())
	removed := 0
	var cursor uint64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, t.prefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			if err = t.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
				return removed, err
			}
			// redis drops empty sorted sets
			exists, err := t.client.Exists(ctx, key).Result()
			if err != nil {
				return removed, err
			}
			if exists == 0 {
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (t *redis_impl) key(address string) string {
	return t.prefix + address
}
