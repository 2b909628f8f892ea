package compiler

import (
	"context"
)

// Artifact 编译产物: 部署字节码 + ABI JSON
type Artifact struct {
	ContractName string `json:"contract_name"`
	Bytecode     string `json:"bytecode"` // Hex string, 不带 0x 前缀
	ABI          string `json:"abi"`      // ABI JSON
}

// Compiler 是 Solidity 编译器的抽象接口
// 编译错误属于业务数据 (要原样展示给用户)，用 errno.ErrCompile.WithMessage 携带
type Compiler interface {
	// Compile 编译源码
	// contractName 可选: 源文件含多个合约时选择其中一个，为空时取唯一/第一个
	// version 期望的编译器版本 (例如 "0.8.24")，与实际版本不符时报错
	Compile(ctx context.Context, source string, contractName string, version string) (*Artifact, error)
}
