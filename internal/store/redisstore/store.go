// Package redisstore tracks recently seen Telegram update ids so retried
// webhook deliveries of the same update are dropped instead of producing
// duplicate turns.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenTTL = 24 * time.Hour

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// MarkUpdateSeen records an update id and reports whether it was already
// seen. Uses SETNX so two concurrent deliveries resolve to exactly one
// first-seen winner.
func (s *Store) MarkUpdateSeen(ctx context.Context, updateID int64) (alreadySeen bool, err error) {
	key := fmt.Sprintf("tg:update:%d", updateID)
	set, err := s.client.SetNX(ctx, key, 1, seenTTL).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
