package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cod-order-service/internal/modal"
)

// RedisHistory keeps one sorted set per phone and per session, scored by
// submission time in milliseconds. Sets expire after the scoring window.
type RedisHistory struct {
	client *redis.Client
	window time.Duration
}

func NewRedisHistory(addr, password string, db int, window time.Duration) *RedisHistory {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisHistory{client: rdb, window: window}
}

func (h *RedisHistory) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func (h *RedisHistory) Close() error {
	return h.client.Close()
}

func phoneKey(shop, phone string) string {
	return fmt.Sprintf("cod:hist:%s:phone:%s", shop, modal.CanonicalPhone(phone))
}
func sessionKey(shop, session string) string {
	return fmt.Sprintf("cod:hist:%s:session:%s", shop, session)
}

func (h *RedisHistory) CountRecentByPhone(ctx context.Context, shop, phone string, since time.Time) (int, error) {
	return h.count(ctx, phoneKey(shop, phone), since)
}

func (h *RedisHistory) CountRecentBySession(ctx context.Context, shop, sessionID string, since time.Time) (int, error) {
	return h.count(ctx, sessionKey(shop, sessionID), since)
}

func (h *RedisHistory) count(ctx context.Context, key string, since time.Time) (int, error) {
	n, err := h.client.ZCount(ctx, key, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount %s: %w", key, err)
	}
	return int(n), nil
}

// RecordSubmission adds s to its phone and session sets and trims entries
// that fell out of the window.
func (h *RedisHistory) RecordSubmission(ctx context.Context, s modal.Submission) error {
	at := s.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	member := redis.Z{Score: float64(at.UnixMilli()), Member: s.ID}
	cutoff := strconv.FormatInt(at.Add(-h.window).UnixMilli(), 10)

	keys := []string{sessionKey(s.Shop, s.SessionID)}
	if s.Phone != "" {
		keys = append(keys, phoneKey(s.Shop, s.Phone))
	}

	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.ZAdd(ctx, key, member)
			pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
			pipe.Expire(ctx, key, h.window)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record submission: %w", err)
	}
	return nil
}
