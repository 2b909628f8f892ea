package service

import (
	"context"
	"errors"

	"signer-core/internal/model"
	"signer-core/pkg/errno"

	"gorm.io/gorm"
)

// RecordStore 是 Coordinator / Deployer / Invoker 的持久层接口
// 生产实现基于 gorm，单元测试用内存实现
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *model.TransactionRecord) error
	GetRecord(ctx context.Context, id string) (*model.TransactionRecord, error)
	ListRecords(ctx context.Context, status model.TxStatus, limit int) ([]model.TransactionRecord, error)
	PendingRecords(ctx context.Context) ([]model.TransactionRecord, error)
	PendingCount(ctx context.Context) (int64, error)
	DeleteRecord(ctx context.Context, id string) error

	// UpdateRecord 持久化记录的非状态字段 (例如 GasEstimate)
	UpdateRecord(ctx context.Context, rec *model.TransactionRecord, updates map[string]interface{}) error

	// Transition 以 CAS 方式推进状态机: 只有当前状态仍为 from 时才更新
	// 否则返回 errno.ErrInvalidState (并发 reject/cancelAll 的竞争由此收敛)
	// outboxPayload 非 nil 时，在同一事务中写入 Outbox 审计消息
	Transition(ctx context.Context, rec *model.TransactionRecord, from, to model.TxStatus,
		updates map[string]interface{}, outboxPayload interface{}) error

	CreateContract(ctx context.Context, c *model.Contract) error
	GetContract(ctx context.Context, address, endpoint string) (*model.Contract, error)
	ListContracts(ctx context.Context, endpoint string) ([]model.Contract, error)
	CreateFunctionCall(ctx context.Context, fc *model.FunctionCall) error
	ListFunctionCalls(ctx context.Context, contractAddr string, limit int) ([]model.FunctionCall, error)
}

// OutboxTopicTx 终态审计事件的 MQ 主题
const OutboxTopicTx = "signer_events_tx"

type gormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 gorm 持久层
func NewGormStore(db *gorm.DB) RecordStore {
	return &gormStore{db: db}
}

func (s *gormStore) CreateRecord(ctx context.Context, rec *model.TransactionRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *gormStore) GetRecord(ctx context.Context, id string) (*model.TransactionRecord, error) {
	var rec model.TransactionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errno.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) ListRecords(ctx context.Context, status model.TxStatus, limit int) ([]model.TransactionRecord, error) {
	var recs []model.TransactionRecord
	q := s.db.WithContext(ctx).Order("queued_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

func (s *gormStore) PendingRecords(ctx context.Context) ([]model.TransactionRecord, error) {
	var recs []model.TransactionRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("queued_at asc").
		Find(&recs).Error
	return recs, err
}

func (s *gormStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.TransactionRecord{}).
		Where("status = ?", model.StatusPending).
		Count(&count).Error
	return count, err
}

func (s *gormStore) DeleteRecord(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.TransactionRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errno.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) UpdateRecord(ctx context.Context, rec *model.TransactionRecord, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(rec).Updates(updates).Error
}

func (s *gormStore) Transition(ctx context.Context, rec *model.TransactionRecord, from, to model.TxStatus,
	updates map[string]interface{}, outboxPayload interface{}) error {

	if !from.CanTransitionTo(to) {
		return errno.ErrInvalidState
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TransactionRecord{}).
			Where("id = ? AND status = ?", rec.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		// 状态已被并发操作改走，CAS 失败
		if res.RowsAffected == 0 {
			return errno.ErrInvalidState
		}

		if outboxPayload != nil {
			if err := model.CreateOutboxMessage(tx, OutboxTopicTx, rec.ID, outboxPayload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *gormStore) CreateContract(ctx context.Context, c *model.Contract) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *gormStore) GetContract(ctx context.Context, address, endpoint string) (*model.Contract, error) {
	var c model.Contract
	err := s.db.WithContext(ctx).
		First(&c, "address = ? AND endpoint = ?", address, endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errno.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) ListContracts(ctx context.Context, endpoint string) ([]model.Contract, error) {
	var cs []model.Contract
	q := s.db.WithContext(ctx).Order("created_at desc")
	if endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	err := q.Find(&cs).Error
	return cs, err
}

func (s *gormStore) CreateFunctionCall(ctx context.Context, fc *model.FunctionCall) error {
	return s.db.WithContext(ctx).Create(fc).Error
}

func (s *gormStore) ListFunctionCalls(ctx context.Context, contractAddr string, limit int) ([]model.FunctionCall, error) {
	var fcs []model.FunctionCall
	q := s.db.WithContext(ctx).Order("called_at desc")
	if contractAddr != "" {
		q = q.Where("contract_addr = ?", contractAddr)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&fcs).Error
	return fcs, err
}
