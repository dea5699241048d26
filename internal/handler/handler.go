package handler

import (
	"strconv"

	"cashback/internal/config"
	"cashback/internal/repository"
	"cashback/internal/service"
	"cashback/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	balanceService    *service.BalanceService
	redemptionService *service.RedemptionService
	orderService      *service.OrderService
	settlementService *service.SettlementService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	redemption := service.NewRedemptionService(db, rdb, cfg)
	return &Handler{
		balanceService:    service.NewBalanceService(db, cfg),
		redemptionService: redemption,
		orderService:      service.NewOrderService(db, redemption, cfg),
		settlementService: service.NewSettlementService(db, rdb, cfg),
	}
}

// ============================================================
// 返现抵扣相关接口
// ============================================================

// PreviewCashback 购物车返现预览
// GET /api/v1/cashback/preview?user_id=xxx&subtotal=xxx
func (h *Handler) PreviewCashback(c *gin.Context) {
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	subtotal, err := strconv.ParseFloat(c.Query("subtotal"), 64)
	if err != nil || subtotal < 0 {
		response.ParamError(c, "subtotal 参数错误")
		return
	}

	applied := 0.0
	if userID > 0 {
		applied, err = h.redemptionService.ValidateForCart(c.Request.Context(), userID, subtotal)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}

	result, err := h.balanceService.Preview(c.Request.Context(), userID, subtotal, applied)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// ApplyCashbackRequest 申请抵扣请求
type ApplyCashbackRequest struct {
	UserID   int64   `json:"user_id" binding:"required"`
	Amount   float64 `json:"amount"`
	Subtotal float64 `json:"subtotal" binding:"gte=0"`
}

// ApplyCashback 在购物车中申请使用返现抵扣
// POST /api/v1/cashback/apply
//
// amount <= 0 等同于取消抵扣；超出上限的金额会被钳制后保存
func (h *Handler) ApplyCashback(c *gin.Context) {
	var req ApplyCashbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	applied, err := h.redemptionService.Apply(c.Request.Context(), req.UserID, req.Amount, req.Subtotal)
	if err != nil {
		if err == service.ErrAnonymousUser {
			response.BusinessError(c, response.CodeAnonymousUser, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id": req.UserID,
		"applied": applied,
	})
}

// RemoveCashback 取消抵扣
// POST /api/v1/cashback/remove
func (h *Handler) RemoveCashback(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.redemptionService.Remove(c.Request.Context(), req.UserID); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "已取消抵扣"})
}

// ============================================================
// 会话相关接口
// ============================================================

// SessionLogin 登录信号，清除上个会话残留的抵扣选择
// POST /api/v1/session/login
func (h *Handler) SessionLogin(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.redemptionService.ClearOnLogin(c.Request.Context(), req.UserID); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, nil)
}

// SessionLogout 登出信号
// POST /api/v1/session/logout
func (h *Handler) SessionLogout(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.redemptionService.ClearOnLogout(c.Request.Context(), req.UserID); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, nil)
}

// ============================================================
// 订单相关接口
// ============================================================

// CreateOrder 订单快照同步
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"order_no":      order.OrderNo,
		"status":        order.Status,
		"cashback_used": order.CashbackUsed,
	})
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			response.BusinessError(c, response.CodeOrderNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 结算信号接口
// ============================================================

// PaymentNotify 支付成功回调
// POST /api/v1/payment/notify
//
// 【关键点】回调可能重复到达，结算内部通过 processed 标志保证
// 幂等，这里不做去重，重复调用返回 already_processed = true
func (h *Handler) PaymentNotify(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.settlementService.Settle(c.Request.Context(), req.OrderNo)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			response.BusinessError(c, response.CodeOrderNotFound, err.Error())
			return
		}
		response.BusinessError(c, response.CodeSettlementFailed, err.Error())
		return
	}

	response.Success(c, result)
}

// OrderStatusChange 订单状态变更信号
// POST /api/v1/order/status
//
// 先记录新状态，再按已支付状态集合过滤决定是否结算
func (h *Handler) OrderStatusChange(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
		Status  string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.orderService.RecordStatus(c.Request.Context(), req.OrderNo, req.Status); err != nil {
		if err == repository.ErrOrderNotFound {
			response.BusinessError(c, response.CodeOrderNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	result, err := h.settlementService.HandleStatusChange(c.Request.Context(), req.OrderNo, req.Status)
	if err != nil {
		response.BusinessError(c, response.CodeSettlementFailed, err.Error())
		return
	}
	if result == nil {
		response.Success(c, gin.H{"order_no": req.OrderNo, "settled": false})
		return
	}

	response.Success(c, result)
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户返现余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	balance, err := h.balanceService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id":      balance.UserID,
		"balance":      balance.Balance,
		"total_earned": balance.TotalEarned,
		"total_spent":  balance.TotalSpent,
		"max_limit":    balance.MaxLimit,
	})
}

// ListTransactions 查询用户返现流水
// GET /api/v1/account/transactions?user_id=xxx&limit=20&offset=0
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, total, err := h.balanceService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":   transactions,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ============================================================
// 管理后台接口
// ============================================================

// AdminListBalances 余额列表（后台报表）
// GET /api/v1/admin/balances?order_by=balance&order=desc&limit=20&offset=0
func (h *Handler) AdminListBalances(c *gin.Context) {
	orderBy := c.DefaultQuery("order_by", "balance")
	order := c.DefaultQuery("order", "desc")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	balances, total, err := h.balanceService.ListBalances(c.Request.Context(), orderBy, order, limit, offset)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":   balances,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// AdminStatistics 全局统计
// GET /api/v1/admin/statistics
func (h *Handler) AdminStatistics(c *gin.Context) {
	stats, err := h.balanceService.Statistics(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}

// AdminSetMaxLimitRequest 设置用户返现上限请求
type AdminSetMaxLimitRequest struct {
	UserID int64   `json:"user_id" binding:"required"`
	Limit  float64 `json:"limit"` // <= 0 表示恢复使用全局上限
}

// AdminSetMaxLimit 设置单个用户的返现累计上限
// POST /api/v1/admin/max-limit
func (h *Handler) AdminSetMaxLimit(c *gin.Context) {
	var req AdminSetMaxLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.balanceService.SetMaxLimit(c.Request.Context(), req.UserID, req.Limit); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "上限已更新"})
}

// AdminResetBalance 管理员清零用户余额
// POST /api/v1/admin/reset
func (h *Handler) AdminResetBalance(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	previous, err := h.balanceService.ResetBalance(c.Request.Context(), req.UserID)
	if err != nil {
		if err == repository.ErrBalanceNotFound {
			response.BusinessError(c, response.CodeBalanceNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id":          req.UserID,
		"previous_balance": previous,
	})
}
