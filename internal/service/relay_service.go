package service

import (
	"context"
	"time"

	"signer-core/internal/model"
	"signer-core/internal/service/mq"
	"signer-core/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RelayService 负责将本地消息表 (Outbox) 的审计事件搬运到 MQ
// 只有发送成功才标记 SENT => At-least-once，消费方需做好幂等
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("[Relay] 启动消息中继服务...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *RelayService) processPendingMessages(ctx context.Context) {
	// 每次取 50 条，避免内存爆炸
	var messages []model.OutboxMessage
	if err := s.db.Where("status = ?", "PENDING").Order("id asc").Limit(50).Find(&messages).Error; err != nil {
		logger.Error("[Relay] 查询消息失败", zap.Error(err))
		return
	}

	if len(messages) == 0 {
		return
	}

	logger.Debug("[Relay] 发现待发送消息", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("[Relay] 发送消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}

		if err := s.db.Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Warn("[Relay] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
		}
	}
}
