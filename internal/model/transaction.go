package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus 交易记录状态机
// pending -> approved -> sent -> {confirmed | failed}
// pending -> rejected
// 只允许前进，不允许回退或跳过 approved
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusApproved  TxStatus = "approved"
	StatusSent      TxStatus = "sent"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
	StatusRejected  TxStatus = "rejected"
)

var txTransitions = map[TxStatus][]TxStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusSent, StatusFailed},
	StatusSent:     {StatusConfirmed, StatusFailed},
}

// CanTransitionTo 判断状态边是否合法
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	for _, t := range txTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal 判断是否终态 (confirmed / failed / rejected)
func (s TxStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusRejected
}

// CallParam 合约调用的单个类型化参数
type CallParam struct {
	Name  string `json:"name"`
	Type  string `json:"type"`  // Solidity 类型, e.g. "uint256"
	Value string `json:"value"` // 编码前的字面值
}

// ParamList 以 JSON 形式落库
type ParamList []CallParam

func (p ParamList) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *ParamList) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("unsupported type for ParamList")
	}
}

// TransactionRecord 待签名/已完成的交易记录表
// ID 在入队时分配，终身不变，是事件总线上的关联键
// 只有 Coordinator 允许修改记录；终态记录保留作为历史，仅用户显式删除
type TransactionRecord struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ToAddress       string          `gorm:"type:varchar(42);index" json:"to_address"` // 空 = 合约创建
	Value           decimal.Decimal `gorm:"type:decimal(32,0);not null;default:0" json:"value"`
	Data            string          `gorm:"type:text" json:"data,omitempty"` // Hex 编码的 calldata
	GasEstimate     uint64          `gorm:"not null;default:0" json:"gas_estimate,omitempty"`
	FunctionName    string          `gorm:"type:varchar(255)" json:"function_name,omitempty"`
	Params          ParamList       `gorm:"type:text" json:"params,omitempty"`
	Status          TxStatus        `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	TxHash          string          `gorm:"type:varchar(66)" json:"tx_hash,omitempty"`
	DeployedAddress string          `gorm:"type:varchar(42)" json:"deployed_address,omitempty"`
	ErrorMessage    string          `gorm:"type:text" json:"error_message,omitempty"`
	QueuedAt        time.Time       `json:"queued_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}

// IsContractCreation 目标地址为空即为部署交易
func (r *TransactionRecord) IsContractCreation() bool {
	return r.ToAddress == ""
}

// Kind 用于监控指标的分类标签
func (r *TransactionRecord) Kind() string {
	switch {
	case r.IsContractCreation():
		return "deploy"
	case r.Data != "" && r.Data != "0x":
		return "call"
	default:
		return "transfer"
	}
}
