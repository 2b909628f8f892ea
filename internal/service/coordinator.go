package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"signer-core/internal/event"
	"signer-core/internal/model"
	"signer-core/pkg/auth"
	"signer-core/pkg/chain"
	"signer-core/pkg/errno"
	"signer-core/pkg/logger"
	"signer-core/pkg/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 估算失败时的兜底 Gas 上限
const (
	fallbackGasTransfer = uint64(21000)
	fallbackGasCall     = uint64(1_000_000)
)

// Coordinator 串行化当前热钱包的所有签名/广播活动
// 队列是它独占的共享状态: 入队、驳回、批量取消、状态推进都必须经过它
// processing 标志保证同一时刻最多一笔交易在签名中 (防止同钱包 nonce 竞争)
type Coordinator struct {
	store   RecordStore
	bus     *event.Bus
	authn   auth.Authenticator
	client  chain.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	processing atomic.Bool
}

func NewCoordinator(store RecordStore, bus *event.Bus, authn auth.Authenticator,
	client chain.Client, key *ecdsa.PrivateKey, chainID int64) *Coordinator {

	return &Coordinator{
		store:   store,
		bus:     bus,
		authn:   authn,
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}
}

// From 热钱包地址
func (c *Coordinator) From() common.Address {
	return c.from
}

// Processing 当前是否有交易在签名/广播中 (UI 据此禁止关闭弹窗)
func (c *Coordinator) Processing() bool {
	return c.processing.Load()
}

// EnqueueInput 入队参数，Value 为十进制 Wei 字符串
type EnqueueInput struct {
	To           string
	Value        string
	Data         string
	FunctionName string
	Params       model.ParamList
}

// Enqueue 构造一条 pending 记录入队并广播 queued 事件
// 不做任何授权动作；只会因为入参不合法而失败
func (c *Coordinator) Enqueue(ctx context.Context, in EnqueueInput) (*model.TransactionRecord, error) {
	if in.To != "" && !common.IsHexAddress(in.To) {
		return nil, errno.ErrValidation.WithMessage("invalid destination address: %q", in.To)
	}

	value, err := parseWei(in.Value)
	if err != nil {
		return nil, err
	}

	if _, err := parseHexData(in.Data); err != nil {
		return nil, errno.ErrValidation.WithMessage("invalid call data: %v", err)
	}

	rec := &model.TransactionRecord{
		ID:           uuid.NewString(),
		ToAddress:    in.To,
		Value:        value,
		Data:         in.Data,
		FunctionName: in.FunctionName,
		Params:       in.Params,
		Status:       model.StatusPending,
		QueuedAt:     time.Now(),
	}

	if err := c.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	monitor.Business.TxQueuedTotal.WithLabelValues(rec.Kind()).Inc()
	c.refreshQueueGauge(ctx)

	logger.Info("[Coordinator] 交易入队", zap.String("id", rec.ID), zap.String("to", rec.ToAddress), zap.String("kind", rec.Kind()))
	c.bus.Publish(event.NewEvent(event.TypeQueued, rec))

	return rec, nil
}

// EstimateGas 调用节点估算 Gas，成功时写回记录
// 估算失败不影响记录状态，调用方展示占位值即可
func (c *Coordinator) EstimateGas(ctx context.Context, id string) (uint64, error) {
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return 0, err
	}

	msg, err := c.callMsg(rec)
	if err != nil {
		return 0, err
	}

	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errno.ErrEstimation.WithMessage("gas estimation failed: %v", err)
	}

	monitor.Business.GasEstimateUnits.Observe(float64(gas))

	rec.GasEstimate = gas
	if err := c.store.UpdateRecord(ctx, rec, map[string]interface{}{"gas_estimate": gas}); err != nil {
		logger.Warn("[Coordinator] 保存 Gas 估算失败", zap.String("id", id), zap.Error(err))
	}
	return gas, nil
}

// Reject 驳回一条 pending 记录
func (c *Coordinator) Reject(ctx context.Context, id string) error {
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	return c.rejectRecord(ctx, rec)
}

func (c *Coordinator) rejectRecord(ctx context.Context, rec *model.TransactionRecord) error {
	if rec.Status != model.StatusPending {
		return errno.ErrInvalidState
	}

	err := c.store.Transition(ctx, rec, model.StatusPending, model.StatusRejected,
		nil, newAuditMessage(rec, model.StatusRejected, "", "", ""))
	if err != nil {
		return err
	}

	rec.Status = model.StatusRejected
	monitor.Business.TxRejectedTotal.Inc()
	c.refreshQueueGauge(ctx)

	logger.Info("[Coordinator] 交易已驳回", zap.String("id", rec.ID))
	c.bus.Publish(event.NewEvent(event.TypeRejected, rec))
	return nil
}

// CancelAll 驳回当前所有 pending 记录，每条各广播一个 rejected 事件
// 先对队列做快照: 快照之后新入队的记录不受影响
// 与并发 Reject/approveAndSubmit 的竞争由 CAS 状态更新收敛 (竞输方静默跳过)
func (c *Coordinator) CancelAll(ctx context.Context) (int, error) {
	snapshot, err := c.store.PendingRecords(ctx)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range snapshot {
		rec := snapshot[i]
		if err := c.rejectRecord(ctx, &rec); err != nil {
			if errno.ErrInvalidState.Is(err) {
				continue // 已被并发处理
			}
			return cancelled, err
		}
		cancelled++
	}

	logger.Info("[Coordinator] 批量取消完成", zap.Int("cancelled", cancelled))
	return cancelled, nil
}

// ApproveAndSubmit 单飞临界区: 授权 -> 签名 -> 广播
// 同一时刻只允许一笔在途，并发调用立即返回 ErrBusy 而不是排队
// 授权失败: 记录保持 pending，不广播事件，错误只返回给调用方
// 广播失败: approved -> failed，广播 error 事件
func (c *Coordinator) ApproveAndSubmit(ctx context.Context, id string) (string, error) {
	if !c.processing.CompareAndSwap(false, true) {
		return "", errno.ErrBusy
	}
	defer c.processing.Store(false)

	start := time.Now()
	defer func() {
		monitor.Business.SubmitDuration.Observe(time.Since(start).Seconds())
	}()

	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != model.StatusPending {
		return "", errno.ErrInvalidState
	}

	// 1. 授权闸门
	if err := c.authn.Authenticate(ctx, c.authReason(rec)); err != nil {
		logger.Warn("[Coordinator] 授权未通过", zap.String("id", rec.ID), zap.Error(err))
		if errno.ErrAuth.Is(err) {
			return "", err
		}
		return "", errno.ErrAuth.WithMessage("authorization failed: %v", err)
	}

	// 2. pending -> approved
	if err := c.store.Transition(ctx, rec, model.StatusPending, model.StatusApproved, nil, nil); err != nil {
		return "", err
	}
	rec.Status = model.StatusApproved
	c.refreshQueueGauge(ctx)
	c.bus.Publish(event.NewEvent(event.TypeApproved, rec))

	// 3. 构造 + 签名 + 广播
	signed, nonce, err := c.buildAndSign(ctx, rec)
	if err != nil {
		return "", c.failSubmission(ctx, rec, err)
	}

	hash, err := c.client.Submit(ctx, signed)
	if err != nil {
		return "", c.failSubmission(ctx, rec, errno.ErrRpc.WithMessage("node rejected transaction: %v", err))
	}
	hashHex := hash.Hex()

	// 4. approved -> sent
	updates := map[string]interface{}{"tx_hash": hashHex}
	deployedAddr := ""
	if rec.IsContractCreation() {
		deployedAddr = crypto.CreateAddress(c.from, nonce).Hex()
		updates["deployed_address"] = deployedAddr
	}

	if err := c.store.Transition(ctx, rec, model.StatusApproved, model.StatusSent,
		updates, newAuditMessage(rec, model.StatusSent, hashHex, deployedAddr, "")); err != nil {
		return "", err
	}
	rec.Status = model.StatusSent
	rec.TxHash = hashHex
	rec.DeployedAddress = deployedAddr

	monitor.Business.TxSubmittedTotal.WithLabelValues(rec.Kind()).Inc()
	logger.Info("[Coordinator] 交易已广播", zap.String("id", rec.ID), zap.String("tx_hash", hashHex))

	if rec.IsContractCreation() {
		c.bus.Publish(event.NewContractCreatedEvent(hashHex, deployedAddr, rec))
	} else {
		c.bus.Publish(event.NewSentEvent(hashHex, rec))
	}
	return hashHex, nil
}

// failSubmission 把广播阶段的失败落为终态并广播 error 事件
func (c *Coordinator) failSubmission(ctx context.Context, rec *model.TransactionRecord, cause error) error {
	monitor.Business.TxFailedTotal.WithLabelValues(rec.Kind()).Inc()
	logger.Error("[Coordinator] 交易广播失败", zap.String("id", rec.ID), zap.Error(cause))

	err := c.store.Transition(ctx, rec, model.StatusApproved, model.StatusFailed,
		map[string]interface{}{"error_message": cause.Error()},
		newAuditMessage(rec, model.StatusFailed, "", "", cause.Error()))
	if err != nil {
		logger.Error("[Coordinator] 落失败状态出错", zap.String("id", rec.ID), zap.Error(err))
	} else {
		rec.Status = model.StatusFailed
		rec.ErrorMessage = cause.Error()
	}

	c.bus.Publish(event.NewErrorEvent(cause, rec))
	return cause
}

// MarkConfirmed 外部回执轮询器确认交易上链后调用 (sent -> confirmed)
func (c *Coordinator) MarkConfirmed(ctx context.Context, id string) error {
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != model.StatusSent {
		return errno.ErrInvalidState
	}
	return c.store.Transition(ctx, rec, model.StatusSent, model.StatusConfirmed,
		nil, newAuditMessage(rec, model.StatusConfirmed, rec.TxHash, rec.DeployedAddress, ""))
}

// GetRecord 查询单条记录
func (c *Coordinator) GetRecord(ctx context.Context, id string) (*model.TransactionRecord, error) {
	return c.store.GetRecord(ctx, id)
}

// ListRecords 查询记录列表 (status 为空时返回全部历史)
func (c *Coordinator) ListRecords(ctx context.Context, status model.TxStatus, limit int) ([]model.TransactionRecord, error) {
	return c.store.ListRecords(ctx, status, limit)
}

// DeleteRecord 用户显式删除一条历史记录，仅允许终态
func (c *Coordinator) DeleteRecord(ctx context.Context, id string) error {
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.Terminal() {
		return errno.ErrInvalidState
	}
	return c.store.DeleteRecord(ctx, id)
}

// GetBalance 查询热钱包余额 (Wei)
func (c *Coordinator) GetBalance(ctx context.Context) (*big.Int, error) {
	bal, err := c.client.GetBalance(ctx, c.from)
	if err != nil {
		return nil, errno.ErrRpc.WithMessage("balance query failed: %v", err)
	}
	return bal, nil
}

// --- helpers ---

func (c *Coordinator) authReason(rec *model.TransactionRecord) string {
	if rec.IsContractCreation() {
		return fmt.Sprintf("Deploy contract (record %s)", rec.ID)
	}
	if rec.FunctionName != "" {
		return fmt.Sprintf("Call %s on %s (record %s)", rec.FunctionName, rec.ToAddress, rec.ID)
	}
	return fmt.Sprintf("Send %s wei to %s (record %s)", rec.Value.String(), rec.ToAddress, rec.ID)
}

func (c *Coordinator) callMsg(rec *model.TransactionRecord) (ethereum.CallMsg, error) {
	data, err := parseHexData(rec.Data)
	if err != nil {
		return ethereum.CallMsg{}, errno.ErrValidation.WithMessage("invalid call data: %v", err)
	}

	msg := ethereum.CallMsg{
		From:  c.from,
		Value: rec.Value.BigInt(),
		Data:  data,
	}
	if !rec.IsContractCreation() {
		to := common.HexToAddress(rec.ToAddress)
		msg.To = &to
	}
	return msg, nil
}

// buildAndSign 取 nonce/gasPrice，构造 EIP-155 签名交易
func (c *Coordinator) buildAndSign(ctx context.Context, rec *model.TransactionRecord) (*types.Transaction, uint64, error) {
	nonce, err := c.client.PendingNonce(ctx, c.from)
	if err != nil {
		return nil, 0, errno.ErrRpc.WithMessage("nonce query failed: %v", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, 0, errno.ErrRpc.WithMessage("gas price query failed: %v", err)
	}

	data, err := parseHexData(rec.Data)
	if err != nil {
		return nil, 0, errno.ErrValidation.WithMessage("invalid call data: %v", err)
	}

	gasLimit := rec.GasEstimate
	if gasLimit == 0 {
		msg, _ := c.callMsg(rec)
		gasLimit, err = c.client.EstimateGas(ctx, msg)
		if err != nil {
			// 估算失败不阻断提交，用兜底上限
			if len(data) == 0 && !rec.IsContractCreation() {
				gasLimit = fallbackGasTransfer
			} else {
				gasLimit = fallbackGasCall
			}
			logger.Warn("[Coordinator] Gas 估算失败，使用兜底上限",
				zap.String("id", rec.ID), zap.Uint64("gas_limit", gasLimit), zap.Error(err))
		}
	}

	txData := &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		Value:    rec.Value.BigInt(),
		Data:     data,
	}
	if !rec.IsContractCreation() {
		to := common.HexToAddress(rec.ToAddress)
		txData.To = &to
	}

	signed, err := types.SignTx(types.NewTx(txData), types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return nil, 0, errno.ErrRpc.WithMessage("signing failed: %v", err)
	}
	return signed, nonce, nil
}

func (c *Coordinator) refreshQueueGauge(ctx context.Context) {
	if count, err := c.store.PendingCount(ctx); err == nil {
		monitor.Business.PendingQueueLength.Set(float64(count))
	}
}

// txAuditMessage 写入 Outbox 的终态审计消息 (Relay 投递到 MQ)
type txAuditMessage struct {
	RecordID        string `json:"record_id"`
	Status          string `json:"status"`
	Kind            string `json:"kind"`
	TxHash          string `json:"tx_hash,omitempty"`
	DeployedAddress string `json:"deployed_address,omitempty"`
	Error           string `json:"error,omitempty"`
	At              int64  `json:"at"`
}

func newAuditMessage(rec *model.TransactionRecord, status model.TxStatus, hash, addr, errMsg string) txAuditMessage {
	return txAuditMessage{
		RecordID:        rec.ID,
		Status:          string(status),
		Kind:            rec.Kind(),
		TxHash:          hash,
		DeployedAddress: addr,
		Error:           errMsg,
		At:              time.Now().Unix(),
	}
}

// parseWei 解析十进制 Wei 字符串，必须是非负整数
func parseWei(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, errno.ErrValidation.WithMessage("value is not an integer: %q", s)
	}
	if v.Sign() < 0 {
		return decimal.Zero, errno.ErrValidation.WithMessage("value must not be negative: %q", s)
	}
	return decimal.NewFromBigInt(v, 0), nil
}

// parseHexData 解析可选 0x 前缀的 Hex 字符串
func parseHexData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
