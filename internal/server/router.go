package server

import (
	"signer-core/internal/handler"
	"signer-core/internal/handler/response"
	"signer-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(tx *handler.TxHandler, deploy *handler.DeployHandler, contract *handler.ContractHandler) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		api.POST("/tx", tx.Enqueue)
		api.GET("/tx", tx.List)
		api.POST("/tx/cancel_all", tx.CancelAll)
		api.GET("/tx/:id", tx.Get)
		api.DELETE("/tx/:id", tx.Delete)
		api.POST("/tx/:id/estimate", tx.EstimateGas)
		api.POST("/tx/:id/reject", tx.Reject)
		api.POST("/tx/:id/approve", tx.Approve)
		api.POST("/tx/:id/confirm", tx.Confirm)

		api.GET("/wallet/status", tx.WalletStatus)

		api.POST("/deploy/compile", deploy.Compile)
		api.GET("/deploy/:flow", deploy.Status)
		api.DELETE("/deploy/:flow", deploy.Drop)
		api.POST("/deploy/:flow/compile", deploy.Recompile)
		api.POST("/deploy/:flow/params", deploy.Params)
		api.POST("/deploy/:flow/run", deploy.Run)
		api.POST("/deploy/:flow/retry", deploy.Retry)

		api.GET("/contracts", contract.List)
		api.GET("/contracts/calls", contract.Calls)
		api.POST("/contracts/invoke", contract.Invoke)
		api.GET("/contracts/:address/functions", contract.Functions)
	}

	return r
}
