package handler

import (
	"strconv"

	"signer-core/internal/handler/request"
	"signer-core/internal/handler/response"
	"signer-core/internal/service"
	"signer-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// ContractHandler 已部署合约与函数调用接口
type ContractHandler struct {
	store   service.RecordStore
	invoker *service.Invoker
	// endpoint 标记本服务连接的节点，合约按 (address, endpoint) 归档
	endpoint string
}

func NewContractHandler(store service.RecordStore, invoker *service.Invoker, endpoint string) *ContractHandler {
	return &ContractHandler{store: store, invoker: invoker, endpoint: endpoint}
}

// List 已部署合约列表
// @Summary 合约列表
// @Tags Contract
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/contracts [get]
func (h *ContractHandler) List(c *gin.Context) {
	cs, err := h.store.ListContracts(c.Request.Context(), h.endpoint)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cs)
}

// Functions 解析合约 ABI 返回函数清单 (名称 / 可变性 / 输入槽位)
// @Summary 函数清单
// @Tags Contract
// @Produce json
// @Param address path string true "Contract Address"
// @Success 200 {object} response.Response
// @Router /api/v1/contracts/{address}/functions [get]
func (h *ContractHandler) Functions(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("address"), h.endpoint)
	if err != nil {
		response.Error(c, err)
		return
	}

	parsed, err := service.ParseABI(contract.ABI)
	if err != nil {
		response.Error(c, err)
		return
	}

	type fnInfo struct {
		Name       string `json:"name"`
		Mutability string `json:"mutability"`
		Inputs     int    `json:"inputs"`
	}
	fns := make([]fnInfo, 0, len(parsed.Methods))
	for name, m := range parsed.Methods {
		fns = append(fns, fnInfo{Name: name, Mutability: m.StateMutability, Inputs: len(m.Inputs)})
	}
	response.Success(c, fns)
}

// Invoke 调用合约函数
// @Summary 函数调用
// @Description 只读函数直连节点返回结果；写函数入队后阻塞等待审批终局
// @Tags Contract
// @Accept json
// @Produce json
// @Param request body request.InvokeRequest true "Invoke Request"
// @Success 200 {object} response.Response
// @Router /api/v1/contracts/invoke [post]
func (h *ContractHandler) Invoke(c *gin.Context) {
	var req request.InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	abiJSON := req.ABI
	if abiJSON == "" {
		contract, err := h.store.GetContract(c.Request.Context(), req.Address, h.endpoint)
		if err != nil {
			response.Error(c, err)
			return
		}
		abiJSON = contract.ABI
	}

	res, err := h.invoker.Invoke(c.Request.Context(), service.InvokeInput{
		ContractAddr: req.Address,
		ABI:          abiJSON,
		Function:     req.Function,
		Params:       req.Params,
		Value:        req.Value,
	})
	if err != nil && res == nil {
		response.Error(c, err)
		return
	}
	// 失败的调用也返回结果体，历史里已经落了记录
	response.Success(c, res)
}

// Calls 函数调用历史
// @Summary 调用历史
// @Tags Contract
// @Produce json
// @Param address query string false "Contract Address"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response
// @Router /api/v1/contracts/calls [get]
func (h *ContractHandler) Calls(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	fcs, err := h.store.ListFunctionCalls(c.Request.Context(), c.Query("address"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, fcs)
}
