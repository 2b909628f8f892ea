package request

import "signer-core/internal/model"

// EnqueueRequest 入队一笔交易
type EnqueueRequest struct {
	To           string          `json:"to"`    // 空 = 合约创建
	Value        string          `json:"value"` // 十进制 Wei 字符串
	Data         string          `json:"data"`  // Hex calldata, 可选
	FunctionName string          `json:"function_name"`
	Params       model.ParamList `json:"params"`
}

// ApproveRequest 审批并提交
type ApproveRequest struct {
	Passcode string `json:"passcode"`
}
