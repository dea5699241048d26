package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么结算需要分布式锁？】
//
// 场景：同一笔订单的两个"支付成功"信号几乎同时到达
// （支付回调 + 状态变更 webhook 各发一次是常态）
//
// processed 标志的 CAS 更新能保证余额不会重复入账，但两个请求
// 会同时走完整个结算计算再在最后一步分出胜负。按订单加锁让第二个
// 信号直接在入口等待，拿到锁后看见 processed=true 立即返回。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 检查 value 是为了防止锁过期后误删其他持有者的锁：
// A 持锁超时自动过期 → B 拿到锁 → A 结束调用 Unlock，
// 不校验 value 的话 A 会把 B 的锁删掉
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：按订单维度的结算锁
// ============================================================================

// NewSettleLock 创建结算锁（按订单维度）
//
// 结算信号没有客户端生成的请求ID，锁持有者标识用 uuid，
// 便于在日志里追踪是哪次结算尝试持有锁
func NewSettleLock(client *redis.Client, orderNo string) *DistributedLock {
	key := fmt.Sprintf("cashback:settle:lock:%s", orderNo)
	return NewDistributedLock(client, key, uuid.NewString(), 30*time.Second)
}
