package handler

import (
	"signer-core/internal/handler/request"
	"signer-core/internal/handler/response"
	"signer-core/internal/service"
	"signer-core/pkg/auth"
	"signer-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// DeployHandler 合约部署向导接口
// 一次部署一个流程实例: compile -> params -> run -> (retry)
type DeployHandler struct {
	manager *service.DeployerManager
}

func NewDeployHandler(manager *service.DeployerManager) *DeployHandler {
	return &DeployHandler{manager: manager}
}

// Compile 创建流程并编译
// @Summary 编译合约
// @Description 编译错误原样返回给用户；成功返回构造函数参数槽位
// @Tags Deploy
// @Accept json
// @Produce json
// @Param request body request.CompileRequest true "Compile Request"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/compile [post]
func (h *DeployHandler) Compile(c *gin.Context) {
	var req request.CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	flow := h.manager.NewFlow()
	st, err := flow.Compile(c.Request.Context(), req.Source, req.ContractName, req.Version)
	if err != nil {
		// 编译失败仍返回流程状态，前端可改源码后对同一流程重新 Compile
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Recompile 对已有流程重新编译 (编译失败后改源码重来)
// @Summary 重新编译
// @Tags Deploy
// @Accept json
// @Produce json
// @Param flow path string true "Flow ID"
// @Param request body request.CompileRequest true "Compile Request"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow}/compile [post]
func (h *DeployHandler) Recompile(c *gin.Context) {
	flow, err := h.manager.Get(c.Param("flow"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	st, err := flow.Compile(c.Request.Context(), req.Source, req.ContractName, req.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Params 提交构造函数参数
// @Summary 构造函数参数
// @Tags Deploy
// @Accept json
// @Produce json
// @Param flow path string true "Flow ID"
// @Param request body request.ConstructorParamsRequest true "Constructor Params"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow}/params [post]
func (h *DeployHandler) Params(c *gin.Context) {
	flow, err := h.manager.Get(c.Param("flow"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.ConstructorParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	st, err := flow.SubmitConstructorParams(req.Params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Run 入队部署交易、审批提交并等待终局事件
// @Summary 执行部署
// @Tags Deploy
// @Accept json
// @Produce json
// @Param flow path string true "Flow ID"
// @Param request body request.DeployRequest true "Deploy Request"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow}/run [post]
func (h *DeployHandler) Run(c *gin.Context) {
	flow, err := h.manager.Get(c.Param("flow"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	ctx := auth.WithPasscode(c.Request.Context(), req.Passcode)
	st, err := flow.Deploy(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Retry 失败后重试 (部署失败复用编译产物，不重新编译)
// @Summary 重试部署
// @Tags Deploy
// @Produce json
// @Param flow path string true "Flow ID"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow}/retry [post]
func (h *DeployHandler) Retry(c *gin.Context) {
	flow, err := h.manager.Get(c.Param("flow"))
	if err != nil {
		response.Error(c, err)
		return
	}

	st, err := flow.Retry()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Status 查询流程状态
// @Summary 流程状态
// @Tags Deploy
// @Produce json
// @Param flow path string true "Flow ID"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow} [get]
func (h *DeployHandler) Status(c *gin.Context) {
	flow, err := h.manager.Get(c.Param("flow"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, flow.Status())
}

// Drop 放弃流程 (进行中的提交不受影响，记录终局由队列页面跟踪)
// @Summary 放弃流程
// @Tags Deploy
// @Produce json
// @Param flow path string true "Flow ID"
// @Success 200 {object} response.Response
// @Router /api/v1/deploy/{flow} [delete]
func (h *DeployHandler) Drop(c *gin.Context) {
	h.manager.Drop(c.Param("flow"))
	response.Success(c, nil)
}
