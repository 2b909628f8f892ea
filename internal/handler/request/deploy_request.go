package request

import "signer-core/internal/model"

// CompileRequest 发起编译
type CompileRequest struct {
	Source       string `json:"source" binding:"required"`
	ContractName string `json:"contract_name"` // 可选: 多合约源文件里选一个
	Version      string `json:"version"`       // 期望的编译器版本
}

// ConstructorParamsRequest 提交构造函数参数
type ConstructorParamsRequest struct {
	Params model.ParamList `json:"params" binding:"required"`
}

// DeployRequest 发起部署 (入队 + 审批提交)
type DeployRequest struct {
	Passcode string `json:"passcode"`
}

// InvokeRequest 调用合约函数
type InvokeRequest struct {
	Address  string          `json:"address" binding:"required"`
	ABI      string          `json:"abi"` // 为空时按地址从合约表读取
	Function string          `json:"function" binding:"required"`
	Params   model.ParamList `json:"params"`
	Value    string          `json:"value"`    // Wei, payable 函数用
	Passcode string          `json:"passcode"` // 写调用在独立审批流中使用，这里仅透传
}
