package event

import "signer-core/internal/model"

// Type 交易生命周期事件类型
type Type string

const (
	TypeQueued          Type = "queued"
	TypeApproved        Type = "approved"
	TypeRejected        Type = "rejected"
	TypeSent            Type = "sent"
	TypeContractCreated Type = "contractCreated"
	TypeError           Type = "error"
	TypeCancelled       Type = "cancelled"
)

// Event 总线上广播的生命周期事件
// 除总线级致命错误外，每个事件都带记录快照，订阅者按 Record.ID 过滤
type Event struct {
	Type            Type                     `json:"type"`
	Record          *model.TransactionRecord `json:"record,omitempty"`
	TxHash          string                   `json:"tx_hash,omitempty"`
	DeployedAddress string                   `json:"deployed_address,omitempty"`
	Err             string                   `json:"err,omitempty"`
}

// RecordID 返回事件关联的记录 ID，无记录时返回空串
func (e Event) RecordID() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.ID
}

// TerminalFor 判断事件是否是指定记录的终局事件
// Invoker / Deployer 只对第一个终局事件做动作
func (e Event) TerminalFor(id string) bool {
	if e.RecordID() != id {
		return false
	}
	switch e.Type {
	case TypeSent, TypeContractCreated, TypeRejected, TypeError, TypeCancelled:
		return true
	}
	return false
}

// snapshot 复制记录，订阅者拿到的是发布时刻的状态
func snapshot(r *model.TransactionRecord) *model.TransactionRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// NewEvent 构造带记录快照的事件
func NewEvent(t Type, r *model.TransactionRecord) Event {
	return Event{Type: t, Record: snapshot(r)}
}

// NewSentEvent 交易被节点接受
func NewSentEvent(hash string, r *model.TransactionRecord) Event {
	return Event{Type: TypeSent, Record: snapshot(r), TxHash: hash}
}

// NewContractCreatedEvent 部署交易被节点接受
func NewContractCreatedEvent(hash, addr string, r *model.TransactionRecord) Event {
	return Event{Type: TypeContractCreated, Record: snapshot(r), TxHash: hash, DeployedAddress: addr}
}

// NewErrorEvent 记录的终局失败
func NewErrorEvent(err error, r *model.TransactionRecord) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: TypeError, Record: snapshot(r), Err: msg}
}
