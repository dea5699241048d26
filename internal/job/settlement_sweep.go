package job

import (
	"context"
	"log"
	"time"

	"cashback/internal/config"
	"cashback/internal/repository"
	"cashback/internal/service"

	"gorm.io/gorm"
)

// SettlementSweep 补偿扫描任务
//
// 支付回调丢失、进程重启等情况会留下"已支付但未结算"的订单，
// 定时扫描把它们捡起来重新结算。结算本身幂等，扫描任务和回调
// 并发触发同一订单也不会重复入账
type SettlementSweep struct {
	orderRepo  *repository.OrderRepository
	settlement *service.SettlementService
	cfg        *config.Config
	stopCh     chan struct{}
	batchSize  int
}

func NewSettlementSweep(db *gorm.DB, settlement *service.SettlementService, cfg *config.Config) *SettlementSweep {
	return &SettlementSweep{
		orderRepo:  repository.NewOrderRepository(db),
		settlement: settlement,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		batchSize:  50,
	}
}

func (s *SettlementSweep) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.Cashback.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	log.Printf("[SettlementSweep] 结算补偿任务启动，扫描间隔 %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SettlementSweep] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[SettlementSweep] 任务停止")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SettlementSweep) Stop() {
	close(s.stopCh)
}

func (s *SettlementSweep) sweep(ctx context.Context) {
	// 留出宽限期，避免和刚到达的支付回调抢同一批订单
	grace := time.Duration(s.cfg.Cashback.SweepGraceSeconds) * time.Second
	before := time.Now().Add(-grace)

	orders, err := s.orderRepo.ListUnprocessedPaid(ctx, s.cfg.Cashback.PaidStatuses, before, s.batchSize)
	if err != nil {
		log.Printf("[SettlementSweep] 查询待结算订单失败: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	log.Printf("[SettlementSweep] 发现 %d 笔已支付未结算订单", len(orders))

	for _, order := range orders {
		result, err := s.settlement.Settle(ctx, order.OrderNo)
		if err != nil {
			log.Printf("[SettlementSweep] 补偿结算失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		if result != nil && !result.AlreadyProcessed {
			log.Printf("[SettlementSweep] 补偿结算完成: orderNo=%s, 抵扣=%.2f, 返现=%.2f",
				order.OrderNo, result.Used, result.Earned)
		}
	}
}
