package service

import (
	"context"
	"fmt"

	"cashback/internal/calc"
	"cashback/internal/config"
	"cashback/internal/model"
	"cashback/internal/repository"

	"gorm.io/gorm"
)

// OrderService 订单快照接入
//
// 宿主商城下单时把订单同步过来，此时把会话里的抵扣选择快照到
// 订单上并清除会话。快照只写这一次，之后只有结算会改它。
type OrderService struct {
	orderRepo   *repository.OrderRepository
	balanceRepo *repository.BalanceRepository
	redemption  *RedemptionService
	db          *gorm.DB
	cfg         *config.Config
}

func NewOrderService(db *gorm.DB, redemption *RedemptionService, cfg *config.Config) *OrderService {
	return &OrderService{
		orderRepo:   repository.NewOrderRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		redemption:  redemption,
		db:          db,
		cfg:         cfg,
	}
}

type OrderItemInput struct {
	ProductID int64   `json:"product_id" binding:"required"`
	BrandIDs  string  `json:"brand_ids"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

type OrderFeeInput struct {
	Name   string  `json:"name" binding:"required"`
	Amount float64 `json:"amount"`
}

type CreateOrderRequest struct {
	OrderNo  string  `json:"order_no" binding:"required"`
	UserID   int64   `json:"user_id"`
	Subtotal float64 `json:"subtotal" binding:"gte=0"`
	Total    float64 `json:"total" binding:"gte=0"`
	Status   string  `json:"status"`

	Items []OrderItemInput `json:"items"`
	Fees  []OrderFeeInput  `json:"fees"`
}

// CreateOrder 落库订单快照，按 order_no 幂等（重复同步返回已有快照）
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	existing, err := s.orderRepo.GetByOrderNo(ctx, req.OrderNo)
	if err == nil {
		return existing, nil
	}
	if err != repository.ErrOrderNotFound {
		return nil, err
	}

	// 下单前最后一次复核抵扣金额：从选择到下单之间余额可能已变
	used := 0.0
	if req.UserID > 0 {
		applied, err := s.redemption.Applied(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("读取待使用返现失败: %w", err)
		}
		if applied > 0 {
			balance, err := s.balanceRepo.GetOrCreate(ctx, req.UserID)
			if err != nil {
				return nil, fmt.Errorf("获取余额失败: %w", err)
			}
			used = calc.ClampRedemption(applied, balance.Balance, req.Subtotal, s.cfg.Cashback.UsageLimitPercentage)
		}
	}

	status := req.Status
	if status == "" {
		status = model.OrderStatusPending
	}

	order := &model.Order{
		OrderNo:      req.OrderNo,
		UserID:       req.UserID,
		Subtotal:     req.Subtotal,
		Total:        req.Total,
		Status:       status,
		CashbackUsed: used,
		SkipEarning:  used > 0,
	}
	for _, item := range req.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		order.Items = append(order.Items, model.OrderItem{
			ProductID: item.ProductID,
			BrandIDs:  item.BrandIDs,
			Quantity:  qty,
			LineTotal: item.LineTotal,
		})
	}
	for _, fee := range req.Fees {
		order.Fees = append(order.Fees, model.OrderFee{
			Name:   fee.Name,
			Amount: fee.Amount,
		})
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("创建订单快照失败: %w", err)
	}

	// 快照落库后清除会话，避免同一笔抵扣被下一个订单复用
	if req.UserID > 0 {
		if err := s.redemption.Remove(ctx, req.UserID); err != nil {
			return nil, fmt.Errorf("清除待使用返现失败: %w", err)
		}
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

// RecordStatus 记录宿主商城推送的状态变更
func (s *OrderService) RecordStatus(ctx context.Context, orderNo, status string) error {
	paid := model.IsPaidStatus(status, s.cfg.Cashback.PaidStatuses)
	return s.orderRepo.UpdateStatus(ctx, orderNo, status, paid)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}
