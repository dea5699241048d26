package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PendingStore 待使用返现的会话存储
//
// 用户在购物车里选择的抵扣金额先放在这里，下单时快照到订单上。
// 登录、登出、下单成功都会清除，避免残留金额泄漏到下一个购物车。
type PendingStore interface {
	Get(ctx context.Context, userID int64) (float64, error)
	Set(ctx context.Context, userID int64, amount float64) error
	Clear(ctx context.Context, userID int64) error
}

// RedisPendingStore 基于 Redis 的会话存储，带 TTL 兜底过期
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{client: client, ttl: ttl}
}

func pendingKey(userID int64) string {
	return fmt.Sprintf("cashback:pending:%d", userID)
}

func (s *RedisPendingStore) Get(ctx context.Context, userID int64) (float64, error) {
	val, err := s.client.Get(ctx, pendingKey(userID)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *RedisPendingStore) Set(ctx context.Context, userID int64, amount float64) error {
	return s.client.Set(ctx, pendingKey(userID), amount, s.ttl).Err()
}

func (s *RedisPendingStore) Clear(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, pendingKey(userID)).Err()
}
