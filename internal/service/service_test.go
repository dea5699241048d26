package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"cashback/internal/config"
	"cashback/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&model.Balance{},
		&model.CashbackTransaction{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderFee{},
		&model.OutboxMessage{},
	)
	if err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	return db
}

// testConfig 默认业务配置：档位 500/3、1000/5、1500/7，抵扣上限 50%
func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{CashbackEarned: "cashback_earned"},
		},
		Cashback: config.CashbackConfig{
			Tier1:                config.TierConfig{Threshold: 500, Percentage: 3},
			Tier2:                config.TierConfig{Threshold: 1000, Percentage: 5},
			Tier3:                config.TierConfig{Threshold: 1500, Percentage: 7},
			UsageLimitPercentage: 50,
			MaxCashbackLimit:     10000,
			PaidStatuses:         []string{"processing", "completed", "on-hold"},
			FeeLabels:            []string{"cashback", "кешбек"},
			PendingTTLMinutes:    60,
			MaxRetryCount:        5,
		},
	}
}

// memoryPendingStore 测试用的进程内会话存储
type memoryPendingStore struct {
	mu      sync.Mutex
	amounts map[int64]float64
}

func newMemoryPendingStore() *memoryPendingStore {
	return &memoryPendingStore{amounts: make(map[int64]float64)}
}

func (s *memoryPendingStore) Get(_ context.Context, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amounts[userID], nil
}

func (s *memoryPendingStore) Set(_ context.Context, userID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amounts[userID] = amount
	return nil
}

func (s *memoryPendingStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.amounts, userID)
	return nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
