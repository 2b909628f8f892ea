package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"signer-core/internal/event"
	"signer-core/internal/model"
	"signer-core/pkg/chain"
	"signer-core/pkg/errno"
	"signer-core/pkg/logger"
	"signer-core/pkg/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Invoker 合约函数调用逻辑
// 只读函数 (view/pure) 直连节点 eth_call，不经过队列
// 写函数 (含 payable) 先订阅总线再入队，等属于自己的第一个终局事件
// 无论成败，每次调用恰好产生一条 FunctionCall 历史
type Invoker struct {
	queue  TxQueue
	bus    *event.Bus
	store  RecordStore
	client chain.Client
	from   common.Address
}

func NewInvoker(queue TxQueue, bus *event.Bus, store RecordStore, client chain.Client, from common.Address) *Invoker {
	return &Invoker{
		queue:  queue,
		bus:    bus,
		store:  store,
		client: client,
		from:   from,
	}
}

// InvokeInput 一次函数调用的输入
type InvokeInput struct {
	ContractAddr string
	ABI          string
	Function     string
	Params       model.ParamList
	Value        string // Wei, 仅 payable 函数
}

// InvokeResult 调用结果
type InvokeResult struct {
	Mode     string `json:"mode"`   // read / write
	Status   string `json:"status"` // success, rejected, failed
	Result   string `json:"result,omitempty"`
	TxHash   string `json:"tx_hash,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Invoke 按函数可变性分流到读路径或写路径
func (iv *Invoker) Invoke(ctx context.Context, in InvokeInput) (*InvokeResult, error) {
	if !common.IsHexAddress(in.ContractAddr) {
		return nil, errno.ErrValidation.WithMessage("invalid contract address: %q", in.ContractAddr)
	}

	parsed, err := ParseABI(in.ABI)
	if err != nil {
		return nil, err
	}
	method, ok := parsed.Methods[in.Function]
	if !ok {
		return nil, errno.ErrValidation.WithMessage("function %q not found in ABI", in.Function)
	}

	args, err := coerceArgs(method.Inputs, in.Params)
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack(in.Function, args...)
	if err != nil {
		return nil, errno.ErrValidation.WithMessage("argument encoding failed: %v", err)
	}

	// view/pure 没有副作用，直接读节点
	if method.StateMutability == "view" || method.StateMutability == "pure" {
		return iv.invokeRead(ctx, in, parsed, data)
	}
	return iv.invokeWrite(ctx, in, data)
}

func (iv *Invoker) invokeRead(ctx context.Context, in InvokeInput, parsed *abi.ABI, data []byte) (*InvokeResult, error) {
	to := common.HexToAddress(in.ContractAddr)
	out, callErr := iv.client.CallContract(ctx, ethereum.CallMsg{
		From: iv.from,
		To:   &to,
		Data: data,
	})

	res := &InvokeResult{Mode: "read"}
	if callErr != nil {
		res.Status = "failed"
		res.Error = callErr.Error()
	} else {
		decoded, err := parsed.Unpack(in.Function, out)
		if err != nil {
			res.Status = "failed"
			res.Error = fmt.Sprintf("result decoding failed: %v", err)
		} else {
			res.Status = "success"
			res.Result = formatOutputs(decoded)
		}
	}

	iv.recordHistory(ctx, in, res)
	monitor.Business.FunctionCallsTotal.WithLabelValues("read", res.Status).Inc()

	if res.Status != "success" {
		return res, errno.ErrRpc.WithMessage("%s", res.Error)
	}
	return res, nil
}

// invokeWrite 写路径: 订阅必须先于入队，防止事件在订阅建立前发布
// 只对第一个属于该记录的终局事件做动作 —— 即使总线之后又送来同记录的事件，
// 历史也只会落一条
func (iv *Invoker) invokeWrite(ctx context.Context, in InvokeInput, data []byte) (*InvokeResult, error) {
	sub := iv.bus.Subscribe()
	defer sub.Unsubscribe()

	rec, err := iv.queue.Enqueue(ctx, EnqueueInput{
		To:           in.ContractAddr,
		Value:        in.Value,
		Data:         "0x" + hex.EncodeToString(data),
		FunctionName: in.Function,
		Params:       in.Params,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Invoker] 写调用已入队，等待审批",
		zap.String("record_id", rec.ID), zap.String("function", in.Function))

	res := &InvokeResult{Mode: "write", RecordID: rec.ID}

	for {
		select {
		case <-ctx.Done():
			// 调用方放弃等待: 记录还在队列里，不产生历史
			return nil, ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				return nil, errno.InternalServerError.WithMessage("event bus closed")
			}
			if !evt.TerminalFor(rec.ID) {
				continue
			}

			switch evt.Type {
			case event.TypeSent, event.TypeContractCreated:
				res.Status = "success"
				res.TxHash = evt.TxHash
			case event.TypeRejected, event.TypeCancelled:
				res.Status = "rejected"
			case event.TypeError:
				res.Status = "failed"
				res.Error = evt.Err
			}

			iv.recordHistory(ctx, in, res)
			monitor.Business.FunctionCallsTotal.WithLabelValues("write", res.Status).Inc()
			return res, nil
		}
	}
}

func (iv *Invoker) recordHistory(ctx context.Context, in InvokeInput, res *InvokeResult) {
	fc := &model.FunctionCall{
		ContractAddr: in.ContractAddr,
		FunctionName: in.Function,
		Params:       in.Params,
		Mode:         res.Mode,
		Status:       res.Status,
		ErrorMessage: res.Error,
		RecordID:     res.RecordID,
		CalledAt:     time.Now(),
	}
	if res.Mode == "read" {
		fc.Result = res.Result
	} else {
		fc.Result = res.TxHash
	}
	if err := iv.store.CreateFunctionCall(ctx, fc); err != nil {
		logger.Error("[Invoker] 写入调用历史失败", zap.Error(err))
	}
}

// formatOutputs 把解码后的返回值拼成可展示的字符串
func formatOutputs(values []interface{}) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}
