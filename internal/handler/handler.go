package handler

import (
	"context"
	"strconv"

	"wealthledger/internal/job"
	"wealthledger/internal/model"
	"wealthledger/internal/service"
	"wealthledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccrualRunner 手动触发收益计提
type AccrualRunner interface {
	Run(ctx context.Context) (*job.AccrualReport, error)
}

// Services 处理器依赖的业务服务
type Services struct {
	Ledger     *service.LedgerService
	Recharge   *service.RechargeService
	Withdrawal *service.WithdrawalService
	Financial  *service.FinancialService
	Product    *service.ProductService
	Settlement *service.SettlementService
	User       *service.UserService
	Accrual    AccrualRunner
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc Services
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func listLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return limit
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询现金余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := CurrentUserID(c)
	balance, err := h.svc.Ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}

// ListFlows 查询资金流水
// GET /api/v1/account/flows?page=1&page_size=20
func (h *Handler) ListFlows(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.svc.Ledger.ListFlows(c.Request.Context(), CurrentUserID(c), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 充值、提现
// ============================================================

// ApplyRecharge 提交充值申请
// POST /api/v1/recharge/apply
func (h *Handler) ApplyRecharge(c *gin.Context) {
	var req service.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = CurrentUserID(c)

	entry, err := h.svc.Recharge.Request(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// ApplyWithdrawal 提交提现申请，申请即扣款
// POST /api/v1/withdraw/apply
func (h *Handler) ApplyWithdrawal(c *gin.Context) {
	var req service.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = CurrentUserID(c)

	entry, err := h.svc.Withdrawal.Request(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// ListWithdrawals 查询提现记录
// GET /api/v1/withdraw/list?status=PROCESSING
func (h *Handler) ListWithdrawals(c *gin.Context) {
	status := model.FlowStatus(c.Query("status"))
	entries, err := h.svc.Withdrawal.List(c.Request.Context(), CurrentUserID(c), status, listLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// ============================================================
// 理财
// ============================================================

// TransferIn 现金转入理财
// POST /api/v1/financial/transfer-in
func (h *Handler) TransferIn(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = CurrentUserID(c)

	holding, err := h.svc.Financial.TransferIn(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, holding)
}

// TransferOut 理财转出到现金
// POST /api/v1/financial/transfer-out
func (h *Handler) TransferOut(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = CurrentUserID(c)

	holding, err := h.svc.Financial.TransferOut(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, holding)
}

// GetHolding 查询理财持仓
// GET /api/v1/financial/holding
func (h *Handler) GetHolding(c *gin.Context) {
	holding, err := h.svc.Financial.GetHolding(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, holding)
}

// ListStatements 查询理财流水
// GET /api/v1/financial/statements?limit=50
func (h *Handler) ListStatements(c *gin.Context) {
	stmts, err := h.svc.Financial.ListStatements(c.Request.Context(), CurrentUserID(c), listLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"list": stmts})
}

// ============================================================
// 产品
// ============================================================

// PurchaseProduct 购买产品
// POST /api/v1/product/purchase
func (h *Handler) PurchaseProduct(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = CurrentUserID(c)

	product, err := h.svc.Product.Purchase(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, product)
}

// ListProducts 查询持有产品
// GET /api/v1/product/list
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.svc.Product.ListByUser(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"list": products})
}

// ============================================================
// 运营接口
// ============================================================

type entryIDRequest struct {
	EntryID int64 `json:"entry_id" binding:"required"`
}

func (h *Handler) bindEntryID(c *gin.Context) (int64, bool) {
	var req entryIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return 0, false
	}
	return req.EntryID, true
}

// ListPendingRecharges 待审核充值
// GET /api/v1/admin/recharge/pending
func (h *Handler) ListPendingRecharges(c *gin.Context) {
	entries, err := h.svc.Recharge.ListPending(c.Request.Context(), listLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// ApproveRecharge POST /api/v1/admin/recharge/approve
func (h *Handler) ApproveRecharge(c *gin.Context) {
	entryID, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	entry, err := h.svc.Recharge.Approve(c.Request.Context(), entryID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// RefuseRecharge POST /api/v1/admin/recharge/refuse
func (h *Handler) RefuseRecharge(c *gin.Context) {
	entryID, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	entry, err := h.svc.Recharge.Refuse(c.Request.Context(), entryID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// ApproveWithdrawal POST /api/v1/admin/withdraw/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	entryID, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	entry, err := h.svc.Withdrawal.Approve(c.Request.Context(), entryID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// RejectWithdrawal POST /api/v1/admin/withdraw/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	entryID, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	entry, err := h.svc.Withdrawal.Reject(c.Request.Context(), entryID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

type adjustRequest struct {
	UserID int64           `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required"`
}

// AdjustBalance 人工调账
// POST /api/v1/admin/account/adjust
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	entry, err := h.svc.Ledger.AdjustBalance(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, entry)
}

// SettleProduct 手动结算产品，产品已结算时直接返回成功
// POST /api/v1/admin/product/settle
func (h *Handler) SettleProduct(c *gin.Context) {
	var req struct {
		ProductID int64 `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.Settlement.Settle(ctx, req.ProductID); err != nil {
		response.FromError(c, err)
		return
	}
	product, err := h.svc.Product.Get(ctx, req.ProductID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, product)
}

// RetryCredits 手动补偿结算回款
// POST /api/v1/admin/credit/retry
func (h *Handler) RetryCredits(c *gin.Context) {
	done, err := h.svc.Settlement.RetryPendingCredits(c.Request.Context(), listLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"done": done})
}

// RunAccrual 手动触发收益计提，同一业务日期重复触发不会重复计提
// POST /api/v1/admin/accrual/run
func (h *Handler) RunAccrual(c *gin.Context) {
	report, err := h.svc.Accrual.Run(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}

// SetAnnualRate 设置年化收益率（百分数）
// POST /api/v1/admin/config/annual-rate
func (h *Handler) SetAnnualRate(c *gin.Context) {
	var req struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.User.SetAnnualRate(c.Request.Context(), req.Rate); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"rate": req.Rate.String()})
}

// UpdateUserSettings 修改用户转出开关、冻结状态
// POST /api/v1/admin/user/settings
func (h *Handler) UpdateUserSettings(c *gin.Context) {
	var req service.UserSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	user, err := h.svc.User.UpdateSettings(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}
