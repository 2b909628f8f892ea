package model

import "time"

// Contract 已部署合约表
// 部署成功后由 Deployer 写入，供函数调用页面读取 ABI
type Contract struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Address   string    `gorm:"type:varchar(42);not null;uniqueIndex:idx_contract_endpoint" json:"address"`
	ABI       string    `gorm:"type:text;not null" json:"abi"`
	Bytecode  string    `gorm:"type:text" json:"bytecode"`
	Source    string    `gorm:"type:text" json:"source"`
	Endpoint  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_contract_endpoint" json:"endpoint"`
	TxHash    string    `gorm:"type:varchar(66)" json:"tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

func (Contract) TableName() string {
	return "contracts"
}

// FunctionCall 合约函数调用历史表
// 每次调用 (无论读写、无论成败) 恰好产生一条记录
type FunctionCall struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractAddr string    `gorm:"type:varchar(42);not null;index" json:"contract_addr"`
	FunctionName string    `gorm:"type:varchar(255);not null" json:"function_name"`
	Params       ParamList `gorm:"type:text" json:"params,omitempty"`
	Mode         string    `gorm:"type:varchar(8);not null" json:"mode"`     // read / write
	Result       string    `gorm:"type:text" json:"result,omitempty"`        // 读调用的解码结果 / 写调用的 TxHash
	Status       string    `gorm:"type:varchar(16);not null" json:"status"`  // success, rejected, failed
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"` // 失败原因
	RecordID     string    `gorm:"type:varchar(36);index" json:"record_id,omitempty"`
	CalledAt     time.Time `json:"called_at"`
}

func (FunctionCall) TableName() string {
	return "function_calls"
}
