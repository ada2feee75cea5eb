package handler

import (
	"wealthledger/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.Use(metrics.GinMiddleware())

	api := r.Group("/api/v1")
	{
		user := api.Group("", IdentityMiddleware())
		{
			account := user.Group("/account")
			{
				account.GET("/balance", h.GetBalance)
				account.GET("/flows", h.ListFlows)
			}

			user.POST("/recharge/apply", h.ApplyRecharge)

			withdraw := user.Group("/withdraw")
			{
				withdraw.POST("/apply", h.ApplyWithdrawal)
				withdraw.GET("/list", h.ListWithdrawals)
			}

			financial := user.Group("/financial")
			{
				financial.POST("/transfer-in", h.TransferIn)
				financial.POST("/transfer-out", h.TransferOut)
				financial.GET("/holding", h.GetHolding)
				financial.GET("/statements", h.ListStatements)
			}

			product := user.Group("/product")
			{
				product.POST("/purchase", h.PurchaseProduct)
				product.GET("/list", h.ListProducts)
			}
		}

		// 运营接口，鉴权由网关负责
		admin := api.Group("/admin")
		{
			admin.GET("/recharge/pending", h.ListPendingRecharges)
			admin.POST("/recharge/approve", h.ApproveRecharge)
			admin.POST("/recharge/refuse", h.RefuseRecharge)
			admin.POST("/withdraw/approve", h.ApproveWithdrawal)
			admin.POST("/withdraw/reject", h.RejectWithdrawal)
			admin.POST("/account/adjust", h.AdjustBalance)
			admin.POST("/product/settle", h.SettleProduct)
			admin.POST("/credit/retry", h.RetryCredits)
			admin.POST("/accrual/run", h.RunAccrual)
			admin.POST("/config/annual-rate", h.SetAnnualRate)
			admin.POST("/user/settings", h.UpdateUserSettings)
		}
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
