package event

import (
	"sync"
)

// Bus 进程内的生命周期事件广播通道
// 语义:
//   - 广播而非工作队列: 每个订阅者独立收到订阅之后发布的每个事件
//   - Publish 对发布方永不阻塞，慢订阅者的积压由 Bus 吸收 (无界队列 + pump goroutine)
//   - 同一记录 ID 的事件对每个订阅者按发布顺序投递
//   - 不回放: 订阅之前发布的事件收不到，消费方必须先订阅再入队
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscription 单个订阅者的事件流
type Subscription struct {
	bus *Bus
	out chan Event

	mu    sync.Mutex
	queue []Event

	wake chan struct{} // 容量 1，唤醒 pump
	done chan struct{}
	once sync.Once
}

// Subscribe 注册一个新订阅者并启动它的投递 goroutine
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:  b,
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Events 订阅者从这里读事件，Unsubscribe/Close 后通道关闭
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Unsubscribe 取消订阅，丢弃未消费的积压
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

// pump 把积压队列搬运到 out 通道，保证投递顺序
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- evt:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) enqueue(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Publish 向所有当前订阅者广播事件，不阻塞
// Bus 级锁保证不同订阅者看到相同的事件顺序
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.enqueue(evt)
	}
}

// Close 关闭总线，终止所有订阅 (进程退出时调用)
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}
