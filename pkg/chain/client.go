package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client 是节点 RPC 的抽象接口
// Coordinator / Deployer / Invoker 只依赖这个接口，单元测试中用 Fake 替换
type Client interface {
	// Submit 广播已签名的交易，返回交易哈希
	Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error)

	// EstimateGas 估算交易 Gas 用量
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// SuggestGasPrice 获取建议 Gas 价格
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// PendingNonce 获取账户的 pending nonce
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)

	// GetBalance 查询账户余额 (Wei)
	GetBalance(ctx context.Context, account common.Address) (*big.Int, error)

	// CallContract 执行只读合约调用 (eth_call)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}
