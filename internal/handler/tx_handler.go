package handler

import (
	"signer-core/internal/handler/request"
	"signer-core/internal/handler/response"
	"signer-core/internal/model"
	"signer-core/internal/service"
	"signer-core/pkg/auth"
	"signer-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// TxHandler 交易队列相关接口
type TxHandler struct {
	coord *service.Coordinator
}

func NewTxHandler(coord *service.Coordinator) *TxHandler {
	return &TxHandler{coord: coord}
}

// Enqueue 入队一笔交易
// @Summary 入队交易
// @Description 构造一条 pending 记录并广播 queued 事件
// @Tags Tx
// @Accept json
// @Produce json
// @Param request body request.EnqueueRequest true "Enqueue Request"
// @Success 200 {object} response.Response
// @Router /api/v1/tx [post]
func (h *TxHandler) Enqueue(c *gin.Context) {
	var req request.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	rec, err := h.coord.Enqueue(c.Request.Context(), service.EnqueueInput{
		To:           req.To,
		Value:        req.Value,
		Data:         req.Data,
		FunctionName: req.FunctionName,
		Params:       req.Params,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// List 查询交易记录 (status 过滤可选)
// @Summary 交易列表
// @Tags Tx
// @Produce json
// @Param status query string false "pending/approved/sent/confirmed/failed/rejected"
// @Success 200 {object} response.Response
// @Router /api/v1/tx [get]
func (h *TxHandler) List(c *gin.Context) {
	status := model.TxStatus(c.Query("status"))
	recs, err := h.coord.ListRecords(c.Request.Context(), status, 200)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, recs)
}

// Get 查询单条记录
// @Summary 交易详情
// @Tags Tx
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id} [get]
func (h *TxHandler) Get(c *gin.Context) {
	rec, err := h.coord.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// EstimateGas 估算 Gas
// @Summary Gas 估算
// @Description 估算失败不影响记录状态，前端展示占位值
// @Tags Tx
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id}/estimate [post]
func (h *TxHandler) EstimateGas(c *gin.Context) {
	gas, err := h.coord.EstimateGas(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"gas": gas})
}

// Reject 驳回 pending 记录
// @Summary 驳回交易
// @Tags Tx
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id}/reject [post]
func (h *TxHandler) Reject(c *gin.Context) {
	if err := h.coord.Reject(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// CancelAll 驳回所有 pending 记录
// @Summary 全部驳回
// @Tags Tx
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/tx/cancel_all [post]
func (h *TxHandler) CancelAll(c *gin.Context) {
	cancelled, err := h.coord.CancelAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": cancelled})
}

// Approve 审批并提交 (单飞临界区)
// @Summary 审批提交
// @Description 授权 -> 签名 -> 广播；已有交易在途时返回 Busy
// @Tags Tx
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body request.ApproveRequest true "Approve Request"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id}/approve [post]
func (h *TxHandler) Approve(c *gin.Context) {
	var req request.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	ctx := auth.WithPasscode(c.Request.Context(), req.Passcode)
	hash, err := h.coord.ApproveAndSubmit(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"tx_hash": hash})
}

// Confirm 外部回执轮询器确认上链 (sent -> confirmed)
// @Summary 确认上链
// @Tags Tx
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id}/confirm [post]
func (h *TxHandler) Confirm(c *gin.Context) {
	if err := h.coord.MarkConfirmed(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Delete 用户显式删除终态历史记录
// @Summary 删除历史
// @Tags Tx
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{id} [delete]
func (h *TxHandler) Delete(c *gin.Context) {
	if err := h.coord.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// WalletStatus 热钱包状态: 地址 / 余额 / 是否有交易在签名中
// @Summary 钱包状态
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/status [get]
func (h *TxHandler) WalletStatus(c *gin.Context) {
	data := gin.H{
		"address":    h.coord.From().Hex(),
		"processing": h.coord.Processing(),
	}
	// 余额查询失败不阻断状态返回 (节点可能暂时不可达)
	if bal, err := h.coord.GetBalance(c.Request.Context()); err == nil {
		data["balance_wei"] = bal.String()
	}
	response.Success(c, data)
}
