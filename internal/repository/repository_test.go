package repository

import (
	"fmt"
	"testing"

	"cashback/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库，避免用例之间互相污染
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
