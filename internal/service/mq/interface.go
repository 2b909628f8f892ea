package mq

import "context"

// Producer 生产者接口
// 审计事件经 Outbox + Relay 投递到 MQ，消费方是外部系统 (对账/通知)
type Producer interface {
	// Publish 发送消息
	// key: 分区键 (记录 ID)，保证同一条记录的事件有序
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Close 关闭生产者
	Close() error
}
