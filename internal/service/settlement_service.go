package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cashback/internal/calc"
	"cashback/internal/config"
	"cashback/internal/infrastructure/lock"
	"cashback/internal/model"
	"cashback/internal/repository"
	"cashback/pkg/idgen"
	"cashback/pkg/money"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SettlementService 订单返现结算
//
// 【关键点】结算是整个系统最核心的操作，需要保证：
// 1. 幂等性：支付回调、状态变更 webhook 会对同一订单重复触发，
//    余额只能变动一次
// 2. 原子性：扣减抵扣、入账返现、流水记录、processed 翻转必须
//    同时成功或同时失败
// 3. 并发安全：processed 的翻转带 WHERE processed = false（CAS），
//    按订单维度的分布式锁减少并发信号的无效计算
//
// 失败不做进程内重试：重复到达的支付信号和补偿扫描任务天然构成
// at-least-once 重试，processed 标志保证成功过一次后全部空转。
type SettlementService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	orderRepo       *repository.OrderRepository
	balanceRepo     *repository.BalanceRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
	tiers           *calc.TierCalculator
	brands          *calc.BrandOverrideCalculator
}

func NewSettlementService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *SettlementService {
	tiers := calc.NewTierCalculator(&cfg.Cashback)
	return &SettlementService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		orderRepo:       repository.NewOrderRepository(db),
		balanceRepo:     repository.NewBalanceRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		tiers:           tiers,
		brands:          calc.NewBrandOverrideCalculator(&cfg.Cashback, tiers),
	}
}

// SettleResult 一次结算的结果
type SettleResult struct {
	OrderNo          string  `json:"order_no"`
	AlreadyProcessed bool    `json:"already_processed"`
	Used             float64 `json:"used"`
	Earned           float64 `json:"earned"`
	Percentage       float64 `json:"percentage"`
}

// HandleStatusChange 状态变更信号入口
// 只有进入配置的已支付状态集合才触发结算，其余状态返回 nil
func (s *SettlementService) HandleStatusChange(ctx context.Context, orderNo, newStatus string) (*SettleResult, error) {
	if !model.IsPaidStatus(newStatus, s.cfg.Cashback.PaidStatuses) {
		return nil, nil
	}
	return s.Settle(ctx, orderNo)
}

// Settle 结算入口，所有"支付成功"信号都汇聚到这里
//
// 重复调用是常态而不是异常：第一个信号完成结算，后续信号看见
// processed=true 直接返回 AlreadyProcessed，不算错误。
func (s *SettlementService) Settle(ctx context.Context, orderNo string) (*SettleResult, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	// 快速路径：已结算直接返回
	if order.Processed {
		return &SettleResult{OrderNo: orderNo, AlreadyProcessed: true, Used: order.CashbackUsed, Earned: order.CashbackEarned}, nil
	}

	// 获取结算锁。锁只用来让并发信号在入口排队，幂等性的底线
	// 始终是 processed 的 CAS 翻转
	if s.redisClient != nil {
		settleLock := lock.NewSettleLock(s.redisClient, orderNo)
		if err := settleLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("获取结算锁失败: %w", err)
		}
		defer settleLock.Unlock(ctx)

		// 拿到锁后重读，前一个持有者可能刚结算完
		order, err = s.orderRepo.GetByOrderNo(ctx, orderNo)
		if err != nil {
			return nil, err
		}
		if order.Processed {
			return &SettleResult{OrderNo: orderNo, AlreadyProcessed: true, Used: order.CashbackUsed, Earned: order.CashbackEarned}, nil
		}
	}

	// 匿名订单不参与返现，直接标记结算完成
	if order.UserID <= 0 {
		err := s.orderRepo.MarkProcessed(ctx, nil, orderNo, order.CashbackUsed, 0)
		if err != nil && !errors.Is(err, repository.ErrAlreadyProcessed) {
			return nil, err
		}
		return &SettleResult{OrderNo: orderNo}, nil
	}

	used := order.CashbackUsed
	// 快照兜底：订单是绕过正常下单路径进来的（没有抵扣快照）时，
	// 从费用明细里找金额为负、名称匹配返现标签的折扣行
	if used <= 0 && !order.SkipEarning {
		used = s.usedFromFees(order.Fees)
	}

	balance, err := s.balanceRepo.GetOrCreate(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取余额失败: %w", err)
	}

	var result SettleResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 行锁读取余额，保证前后余额的计算和原子更新看到同一个值
		balance, err = s.balanceRepo.GetForUpdate(ctx, tx, order.UserID)
		if err != nil {
			return err
		}
		before := balance.Balance

		// ── 1. 扣减本单抵扣的返现 ──
		if used > 0 {
			if used > before {
				// 余额不足时扣减清零而不是报错（兼容老系统行为），
				// 流水里的前后余额会暴露这次裁剪
				log.Printf("[Settlement] 警告: 订单 %s 抵扣 %.2f 超过余额 %.2f，余额将清零",
					orderNo, used, before)
			}
			if err := s.balanceRepo.Debit(ctx, tx, order.UserID, used); err != nil {
				return fmt.Errorf("扣减余额失败: %w", err)
			}

			after := money.Round2(before - used)
			if after < 0 {
				after = 0
			}
			s.appendTransaction(ctx, tx, &model.CashbackTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        order.UserID,
				OrderID:       order.ID,
				Type:          model.TransactionTypeSpent,
				Amount:        used,
				BalanceBefore: before,
				BalanceAfter:  after,
				OrderTotal:    order.Total,
				Description:   fmt.Sprintf("订单 %s 使用返现抵扣", orderNo),
			})
			before = after
		}

		// ── 2. 计算并入账本单应得返现 ──
		// 基数是小计减去抵扣：只对真正付钱的部分返现
		base := order.Subtotal - used
		if base < 0 {
			base = 0
		}

		var earned float64
		if s.cfg.Cashback.PerBrandLogic {
			earned = s.brands.Calculate(lineItems(order.Items), order.Subtotal, used)
		} else {
			earned = s.tiers.Amount(base)
		}

		percentage := 0.0
		if base > 0 && earned > 0 {
			percentage = money.Round1(earned / base * 100)
		}

		// 余额上限裁剪：只入账到上限为止
		maxLimit := balance.EffectiveMaxLimit(s.cfg.Cashback.MaxCashbackLimit)
		if maxLimit > 0 && before+earned > maxLimit {
			earned = money.Round2(maxLimit - before)
			if earned < 0 {
				earned = 0
			}
		}

		if earned > 0 {
			if err := s.balanceRepo.Credit(ctx, tx, order.UserID, earned); err != nil {
				return fmt.Errorf("返现入账失败: %w", err)
			}

			after := money.Round2(before + earned)
			s.appendTransaction(ctx, tx, &model.CashbackTransaction{
				TransactionNo:      idgen.GenerateTransactionNo(),
				UserID:             order.UserID,
				OrderID:            order.ID,
				Type:               model.TransactionTypeEarned,
				Amount:             earned,
				BalanceBefore:      before,
				BalanceAfter:       after,
				OrderTotal:         order.Total,
				CashbackPercentage: percentage,
				Description:        fmt.Sprintf("订单 %s 返现 %.1f%%", orderNo, percentage),
			})

			// 发件箱事件，由后台任务投递到 Kafka 触发通知
			if err := s.enqueueEarnedEvent(ctx, tx, order, earned, percentage, after); err != nil {
				return fmt.Errorf("写入通知事件失败: %w", err)
			}
		}

		// ── 3. CAS 翻转 processed ──
		// 失败说明并发结算已经完成，整个事务回滚，之前的余额
		// 变动一并撤销
		if err := s.orderRepo.MarkProcessed(ctx, tx, orderNo, used, earned); err != nil {
			return err
		}

		result = SettleResult{
			OrderNo:    orderNo,
			Used:       used,
			Earned:     earned,
			Percentage: percentage,
		}
		return nil
	})

	if errors.Is(err, repository.ErrAlreadyProcessed) {
		// 并发信号抢先完成了结算，视为成功的空操作
		return &SettleResult{OrderNo: orderNo, AlreadyProcessed: true}, nil
	}
	if err != nil {
		log.Printf("[Settlement] 订单 %s 结算失败: %v", orderNo, err)
		return nil, err
	}

	log.Printf("[Settlement] 订单结算完成: orderNo=%s, userID=%d, used=%.2f, earned=%.2f",
		orderNo, order.UserID, result.Used, result.Earned)
	return &result, nil
}

// appendTransaction 写流水
// 流水是审计用途，写入失败降级为"无审计"告警，不回滚余额变动
func (s *SettlementService) appendTransaction(ctx context.Context, tx *gorm.DB, trans *model.CashbackTransaction) {
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		log.Printf("[Settlement] 警告: 流水写入失败 (userID=%d, type=%s, amount=%.2f): %v",
			trans.UserID, trans.Type, trans.Amount, err)
	}
}

// usedFromFees 从费用明细兜底识别返现折扣
// 取金额为负、名称包含任一返现标签（不区分大小写）的行
func (s *SettlementService) usedFromFees(fees []model.OrderFee) float64 {
	for _, fee := range fees {
		if fee.Amount >= 0 {
			continue
		}
		name := strings.ToLower(fee.Name)
		for _, label := range s.cfg.Cashback.FeeLabels {
			if strings.Contains(name, strings.ToLower(label)) {
				return money.Round2(-fee.Amount)
			}
		}
	}
	return 0
}

func (s *SettlementService) enqueueEarnedEvent(ctx context.Context, tx *gorm.DB, order *model.Order, earned, percentage, balanceAfter float64) error {
	event := model.EarnedEvent{
		UserID:       order.UserID,
		OrderID:      order.ID,
		OrderNo:      order.OrderNo,
		Amount:       earned,
		Percentage:   percentage,
		BalanceAfter: balanceAfter,
		EarnedAt:     time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: order.OrderNo,
		Topic:      s.cfg.Kafka.Topic.CashbackEarned,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

func lineItems(items []model.OrderItem) []calc.LineItem {
	result := make([]calc.LineItem, 0, len(items))
	for _, item := range items {
		result = append(result, calc.LineItem{
			ProductID: item.ProductID,
			BrandIDs:  item.BrandIDList(),
			LineTotal: item.LineTotal,
		})
	}
	return result
}
