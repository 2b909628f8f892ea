package service

import (
	"context"
	"encoding/hex"
	"sync"

	"signer-core/internal/event"
	"signer-core/internal/model"
	"signer-core/pkg/compiler"
	"signer-core/pkg/errno"
	"signer-core/pkg/logger"
	"signer-core/pkg/monitor"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeployState 部署流程状态机
// idle -> compiling -> collecting_params -> deploying -> {succeeded | failed}
// 编译失败回到 compiling (改源码重来)；部署失败回到 deploying (复用编译产物重试)
type DeployState string

const (
	DeployIdle             DeployState = "idle"
	DeployCompiling        DeployState = "compiling"
	DeployCollectingParams DeployState = "collecting_params"
	DeployDeploying        DeployState = "deploying"
	DeploySucceeded        DeployState = "succeeded"
	DeployFailed           DeployState = "failed"
)

// TxQueue 是 Deployer/Invoker 对 Coordinator 的依赖面
type TxQueue interface {
	Enqueue(ctx context.Context, in EnqueueInput) (*model.TransactionRecord, error)
	ApproveAndSubmit(ctx context.Context, id string) (string, error)
	GetRecord(ctx context.Context, id string) (*model.TransactionRecord, error)
}

// Deployer 单次部署流程的状态机，构建在 Coordinator 和事件总线之上
// 每个部署请求一个实例；并发安全 (HTTP 层可能多次请求同一个流程)
type Deployer struct {
	id    string
	queue TxQueue
	bus   *event.Bus
	store RecordStore
	comp  compiler.Compiler

	// endpoint 仅作为合约实体的归属标记落库
	endpoint string

	mu         sync.Mutex
	state      DeployState
	source     string
	artifact   *compiler.Artifact
	parsedABI  *abi.ABI
	ctorSlots  model.ParamList
	encodedCtor []byte
	paramsSet  bool
	recordID   string
	lastErr    string
	contract   *model.Contract
}

func NewDeployer(queue TxQueue, bus *event.Bus, store RecordStore, comp compiler.Compiler, endpoint string) *Deployer {
	return &Deployer{
		id:       uuid.NewString(),
		queue:    queue,
		bus:      bus,
		store:    store,
		comp:     comp,
		endpoint: endpoint,
		state:    DeployIdle,
	}
}

// ID 部署流程标识 (HTTP 层用它找回实例)
func (d *Deployer) ID() string {
	return d.id
}

// Status 当前状态快照
type DeployStatus struct {
	FlowID           string          `json:"flow_id"`
	State            DeployState     `json:"state"`
	ContractName     string          `json:"contract_name,omitempty"`
	ConstructorSlots model.ParamList `json:"constructor_slots,omitempty"`
	RecordID         string          `json:"record_id,omitempty"`
	Error            string          `json:"error,omitempty"`
	Contract         *model.Contract `json:"contract,omitempty"`
}

func (d *Deployer) Status() DeployStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := DeployStatus{
		FlowID:           d.id,
		State:            d.state,
		ConstructorSlots: d.ctorSlots,
		RecordID:         d.recordID,
		Error:            d.lastErr,
		Contract:         d.contract,
	}
	if d.artifact != nil {
		st.ContractName = d.artifact.ContractName
	}
	return st
}

// Compile 调用编译器协作者，缓存编译产物
// 编译错误是领域数据: 原样保存并返回，流程进入 failed，可改源码后再次 Compile
func (d *Deployer) Compile(ctx context.Context, source, contractName, version string) (DeployStatus, error) {
	d.mu.Lock()
	if d.state == DeployDeploying {
		d.mu.Unlock()
		return d.Status(), errno.ErrInvalidState.WithMessage("deployment already in flight")
	}
	d.state = DeployCompiling
	d.mu.Unlock()

	artifact, err := d.comp.Compile(ctx, source, contractName, version)
	if err != nil {
		d.fail(err)
		return d.Status(), err
	}

	parsed, err := ParseABI(artifact.ABI)
	if err != nil {
		d.fail(err)
		return d.Status(), err
	}

	d.mu.Lock()
	d.source = source
	d.artifact = artifact
	d.parsedABI = parsed
	d.encodedCtor = nil
	d.paramsSet = false
	d.recordID = ""
	d.lastErr = ""
	// 构造函数无参数时 collecting_params 是个直通状态
	d.ctorSlots = paramSlots(parsed.Constructor.Inputs)
	d.state = DeployCollectingParams
	d.mu.Unlock()

	logger.Info("[Deployer] 编译成功", zap.String("flow", d.id),
		zap.String("contract", artifact.ContractName), zap.Int("ctor_params", len(d.ctorSlots)))
	return d.Status(), nil
}

// SubmitConstructorParams 填充构造函数参数并完成 ABI 编码
func (d *Deployer) SubmitConstructorParams(params model.ParamList) (DeployStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DeployCollectingParams {
		return d.statusLocked(), errno.ErrInvalidState.WithMessage("flow is %s, not collecting parameters", d.state)
	}

	args, err := coerceArgs(d.parsedABI.Constructor.Inputs, params)
	if err != nil {
		return d.statusLocked(), err
	}

	encoded, err := d.parsedABI.Pack("", args...)
	if err != nil {
		return d.statusLocked(), errno.ErrValidation.WithMessage("constructor encoding failed: %v", err)
	}

	// 把填好的值回写到槽位，便于 UI 回显
	for i := range d.ctorSlots {
		d.ctorSlots[i].Value = params[i].Value
	}
	d.encodedCtor = encoded
	d.paramsSet = true
	return d.statusLocked(), nil
}

// Deploy 入队部署交易并等待总线上属于自己的终局事件
// 必须先订阅再入队，否则事件可能在订阅建立前就已发布
func (d *Deployer) Deploy(ctx context.Context) (DeployStatus, error) {
	d.mu.Lock()
	switch d.state {
	case DeployCollectingParams, DeployDeploying:
		// collecting_params: 首次部署; deploying: 授权失败/Busy 后重新提交
	default:
		d.mu.Unlock()
		return d.Status(), errno.ErrInvalidState.WithMessage("flow is %s, nothing to deploy", d.state)
	}
	if len(d.parsedABI.Constructor.Inputs) > 0 && !d.paramsSet {
		d.mu.Unlock()
		return d.Status(), errno.ErrValidation.WithMessage("constructor parameters not provided")
	}

	deployData := "0x" + d.artifact.Bytecode + hex.EncodeToString(d.encodedCtor)
	contractName := d.artifact.ContractName
	slots := d.ctorSlots
	recordID := d.recordID
	d.state = DeployDeploying
	d.mu.Unlock()

	// 订阅先于入队，避免丢事件
	sub := d.bus.Subscribe()
	defer sub.Unsubscribe()

	if recordID == "" {
		rec, err := d.queue.Enqueue(ctx, EnqueueInput{
			To:           "",
			Value:        "0",
			Data:         deployData,
			FunctionName: "constructor",
			Params:       slots,
		})
		if err != nil {
			d.fail(err)
			return d.Status(), err
		}
		recordID = rec.ID
		d.mu.Lock()
		d.recordID = recordID
		d.mu.Unlock()
	}

	if _, err := d.queue.ApproveAndSubmit(ctx, recordID); err != nil {
		// Busy / 授权拒绝: 记录仍是 pending，流程停在 deploying，可直接再次 Deploy
		if errno.ErrBusy.Is(err) || errno.ErrAuth.Is(err) {
			return d.Status(), err
		}
		// 广播失败会同时发 error 事件，往下走统一在事件里收尾
	}

	return d.awaitOutcome(ctx, sub, recordID, contractName)
}

func (d *Deployer) awaitOutcome(ctx context.Context, sub *event.Subscription, recordID, contractName string) (DeployStatus, error) {
	for {
		select {
		case <-ctx.Done():
			return d.Status(), ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				return d.Status(), errno.InternalServerError.WithMessage("event bus closed")
			}
			// 总线是共享广播，别人的事件直接忽略
			if !evt.TerminalFor(recordID) {
				continue
			}

			switch evt.Type {
			case event.TypeContractCreated:
				contract := &model.Contract{
					Name:     contractName,
					Address:  evt.DeployedAddress,
					ABI:      d.artifact.ABI,
					Bytecode: d.artifact.Bytecode,
					Source:   d.source,
					Endpoint: d.endpoint,
					TxHash:   evt.TxHash,
				}
				if err := d.store.CreateContract(ctx, contract); err != nil {
					d.fail(err)
					return d.Status(), err
				}
				d.mu.Lock()
				d.contract = contract
				d.lastErr = ""
				d.state = DeploySucceeded
				d.mu.Unlock()
				monitor.Business.DeploymentsTotal.WithLabelValues("success").Inc()
				logger.Info("[Deployer] 部署成功", zap.String("flow", d.id),
					zap.String("address", evt.DeployedAddress), zap.String("tx_hash", evt.TxHash))
				return d.Status(), nil

			case event.TypeError, event.TypeRejected, event.TypeCancelled:
				msg := evt.Err
				if msg == "" {
					msg = "transaction " + string(evt.Type)
				}
				d.mu.Lock()
				d.lastErr = msg
				d.state = DeployFailed
				d.mu.Unlock()
				monitor.Business.DeploymentsTotal.WithLabelValues("failed").Inc()
				logger.Warn("[Deployer] 部署失败", zap.String("flow", d.id), zap.String("reason", msg))
				return d.Status(), errno.ErrRpc.WithMessage("%s", msg)
			}
		}
	}
}

// Retry 失败后的重试入口
// 部署阶段失败: 复用缓存的编译产物回到待部署，不重新编译
// 编译阶段失败: 回到 idle，由调用方重新 Compile
func (d *Deployer) Retry() (DeployStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DeployFailed {
		return d.statusLocked(), errno.ErrInvalidState.WithMessage("flow is %s, nothing to retry", d.state)
	}

	if d.artifact != nil {
		// 上一笔部署记录已进终态，重试要入队新记录
		d.recordID = ""
		d.lastErr = ""
		d.state = DeployCollectingParams
	} else {
		d.lastErr = ""
		d.state = DeployIdle
	}
	return d.statusLocked(), nil
}

func (d *Deployer) fail(err error) {
	d.mu.Lock()
	d.lastErr = err.Error()
	d.state = DeployFailed
	d.mu.Unlock()
}

func (d *Deployer) statusLocked() DeployStatus {
	st := DeployStatus{
		FlowID:           d.id,
		State:            d.state,
		ConstructorSlots: d.ctorSlots,
		RecordID:         d.recordID,
		Error:            d.lastErr,
		Contract:         d.contract,
	}
	if d.artifact != nil {
		st.ContractName = d.artifact.ContractName
	}
	return st
}

// DeployerManager 按流程 ID 管理进行中的部署实例
type DeployerManager struct {
	mu    sync.Mutex
	flows map[string]*Deployer

	queue    TxQueue
	bus      *event.Bus
	store    RecordStore
	comp     compiler.Compiler
	endpoint string
}

func NewDeployerManager(queue TxQueue, bus *event.Bus, store RecordStore, comp compiler.Compiler, endpoint string) *DeployerManager {
	return &DeployerManager{
		flows:    make(map[string]*Deployer),
		queue:    queue,
		bus:      bus,
		store:    store,
		comp:     comp,
		endpoint: endpoint,
	}
}

// NewFlow 创建一个新的部署流程
func (m *DeployerManager) NewFlow() *Deployer {
	d := NewDeployer(m.queue, m.bus, m.store, m.comp, m.endpoint)
	m.mu.Lock()
	m.flows[d.ID()] = d
	m.mu.Unlock()
	return d
}

// Get 找回流程实例
func (m *DeployerManager) Get(id string) (*Deployer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.flows[id]
	if !ok {
		return nil, errno.ErrRecordNotFound.WithMessage("deployment flow %s not found", id)
	}
	return d, nil
}

// Drop 终局后清理流程 (成功或用户放弃)
func (m *DeployerManager) Drop(id string) {
	m.mu.Lock()
	delete(m.flows, id)
	m.mu.Unlock()
}
