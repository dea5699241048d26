package handler

import (
	"cashback/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 返现抵扣
		cashback := api.Group("/cashback")
		{
			cashback.GET("/preview", h.PreviewCashback)
			cashback.POST("/apply", h.ApplyCashback)
			cashback.POST("/remove", h.RemoveCashback)
		}

		// 会话信号
		session := api.Group("/session")
		{
			session.POST("/login", h.SessionLogin)
			session.POST("/logout", h.SessionLogout)
		}

		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/status", h.OrderStatusChange)
		}

		// 支付回调
		payment := api.Group("/payment")
		{
			payment.POST("/notify", h.PaymentNotify)
		}

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
		}

		// 管理后台
		admin := api.Group("/admin")
		{
			admin.GET("/balances", h.AdminListBalances)
			admin.GET("/statistics", h.AdminStatistics)
			admin.POST("/max-limit", h.AdminSetMaxLimit)
			admin.POST("/reset", h.AdminResetBalance)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
