package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"signer-core/internal/event"
	"signer-core/internal/model"
	"signer-core/pkg/errno"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x1111111111111111111111111111111111111111"

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore, *event.Bus, *fakeAuth, *fakeClient) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := newMemStore()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	authn := &fakeAuth{}
	client := &fakeClient{}

	c := NewCoordinator(store, bus, authn, client, key, 1337)
	return c, store, bus, authn, client
}

// waitEvent 消费订阅直到出现指定记录的指定事件，中途别的事件跳过
func waitEvent(t *testing.T, sub *event.Subscription, want event.Type, recordID string) event.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-sub.Events():
			require.True(t, ok, "subscription closed while waiting for %s", want)
			if evt.RecordID() != recordID || evt.Type != want {
				continue
			}
			return evt
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestEnqueueAssignsDistinctIDs(t *testing.T) {
	c, _, bus, _, _ := newTestCoordinator(t)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	r1, err := c.Enqueue(context.Background(), EnqueueInput{To: testAddr, Value: "100"})
	require.NoError(t, err)
	r2, err := c.Enqueue(context.Background(), EnqueueInput{To: testAddr, Value: "100"})
	require.NoError(t, err)

	assert.NotEmpty(t, r1.ID)
	assert.NotEqual(t, r1.ID, r2.ID)
	assert.Equal(t, model.StatusPending, r1.Status)
	assert.Equal(t, model.StatusPending, r2.Status)

	evt := waitEvent(t, sub, event.TypeQueued, r1.ID)
	assert.Equal(t, model.StatusPending, evt.Record.Status)
	waitEvent(t, sub, event.TypeQueued, r2.ID)
}

func TestEnqueueValidation(t *testing.T) {
	c, store, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	cases := []EnqueueInput{
		{To: "not-an-address", Value: "1"},
		{To: testAddr, Value: "3.14"},
		{To: testAddr, Value: "-5"},
		{To: testAddr, Value: "abc"},
		{To: testAddr, Value: "0", Data: "0xzz"},
	}
	for _, in := range cases {
		_, err := c.Enqueue(ctx, in)
		require.Error(t, err, "input %+v", in)
		assert.True(t, errno.ErrValidation.Is(err), "input %+v: got %v", in, err)
	}

	// 不合法的入队不留痕
	count, _ := store.PendingCount(ctx)
	assert.Zero(t, count)
}

func TestApproveAndSubmitLifecycle(t *testing.T) {
	c, store, bus, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1000"})
	require.NoError(t, err)

	hash, err := c.ApproveAndSubmit(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// 事件顺序: queued -> approved -> sent，记录 ID 全程不变
	var sent event.Event
	for _, want := range []event.Type{event.TypeQueued, event.TypeApproved, event.TypeSent} {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, want, evt.Type)
			assert.Equal(t, rec.ID, evt.RecordID())
			sent = evt
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
	assert.Equal(t, hash, sent.TxHash)

	stored, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.Equal(t, hash, stored.TxHash)
}

func TestApproveDeclinedStaysPending(t *testing.T) {
	c, store, bus, authn, _ := newTestCoordinator(t)
	ctx := context.Background()
	authn.decline = true

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	_, err = c.ApproveAndSubmit(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errno.ErrAuth.Is(err))

	// 授权失败: 记录保持 pending，不广播任何事件
	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusPending, stored.Status)

	bus.Publish(event.NewEvent(event.TypeQueued, &model.TransactionRecord{ID: "marker"}))
	select {
	case evt := <-sub.Events():
		// 订阅后的第一个事件必须是标记事件，中间没有 approved/rejected
		assert.Equal(t, "marker", evt.RecordID())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for marker event")
	}

	// 重新授权后同一条记录可以正常提交
	authn.decline = false
	_, err = c.ApproveAndSubmit(ctx, rec.ID)
	require.NoError(t, err)
}

func TestApproveAndSubmitSingleFlight(t *testing.T) {
	c, _, _, _, client := newTestCoordinator(t)
	ctx := context.Background()

	client.submitGate = make(chan struct{})
	client.submitEntered = make(chan struct{})

	r1, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)
	r2, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "2"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.ApproveAndSubmit(ctx, r1.ID)
		done <- err
	}()

	// 等第一笔进入广播阶段再并发第二笔
	select {
	case <-client.submitEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the node")
	}

	_, err = c.ApproveAndSubmit(ctx, r2.ID)
	require.Error(t, err)
	assert.True(t, errno.ErrBusy.Is(err))

	close(client.submitGate)
	require.NoError(t, <-done)

	// 第一笔完成后第二笔可以正常提交
	_, err = c.ApproveAndSubmit(ctx, r2.ID)
	require.NoError(t, err)
}

func TestSubmitFailureMarksFailed(t *testing.T) {
	c, store, bus, _, client := newTestCoordinator(t)
	ctx := context.Background()
	client.setSubmitErr(errors.New("insufficient funds for gas"))

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	_, err = c.ApproveAndSubmit(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errno.ErrRpc.Is(err))

	evt := waitEvent(t, sub, event.TypeError, rec.ID)
	assert.Contains(t, evt.Err, "insufficient funds")

	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "insufficient funds")
}

func TestRejectTwice(t *testing.T) {
	c, store, bus, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	require.NoError(t, c.Reject(ctx, rec.ID))
	waitEvent(t, sub, event.TypeRejected, rec.ID)

	err = c.Reject(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errno.ErrInvalidState.Is(err))

	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusRejected, stored.Status)
}

func TestCancelAll(t *testing.T) {
	c, store, bus, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	n, err := c.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 每条记录各广播一个 rejected 事件
	for _, id := range ids {
		waitEvent(t, sub, event.TypeRejected, id)
		stored, _ := store.GetRecord(ctx, id)
		assert.Equal(t, model.StatusRejected, stored.Status)
	}

	count, _ := store.PendingCount(ctx)
	assert.Zero(t, count)
}

func TestCancelAllSkipsConcurrentlyProcessed(t *testing.T) {
	c, store, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	r1, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)
	r2, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "2"})
	require.NoError(t, err)

	// 模拟快照建立后的并发: r1 被驳回 (CAS 失败静默跳过)，r3 新入队 (不在快照内)
	r3 := &model.TransactionRecord{ID: "late-arrival", ToAddress: testAddr, Status: model.StatusPending}
	store.pendingHook = func(s *memStore) {
		s.mu.Lock()
		s.records[r1.ID].Status = model.StatusRejected
		cp := *r3
		s.records[r3.ID] = &cp
		s.mu.Unlock()
		s.pendingHook = nil
	}

	n, err := c.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := store.GetRecord(ctx, r2.ID)
	assert.Equal(t, model.StatusRejected, stored.Status)

	// 快照之后入队的记录不受影响
	late, _ := store.GetRecord(ctx, r3.ID)
	assert.Equal(t, model.StatusPending, late.Status)
}

func TestEnqueuedCalldataWalksFullLifecycle(t *testing.T) {
	c, store, bus, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	// 只读函数的 calldata 直接入队时也走完整的审批流，没有旁路
	rec, err := c.Enqueue(ctx, EnqueueInput{
		To:    testAddr,
		Value: "0",
		Data:  "0x2ddbd13a", // total()
	})
	require.NoError(t, err)
	assert.Equal(t, "call", rec.Kind())

	hash, err := c.ApproveAndSubmit(ctx, rec.ID)
	require.NoError(t, err)

	waitEvent(t, sub, event.TypeQueued, rec.ID)
	waitEvent(t, sub, event.TypeApproved, rec.ID)
	waitEvent(t, sub, event.TypeSent, rec.ID)

	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.Equal(t, hash, stored.TxHash)
}

func TestContractCreationAssignsAddress(t *testing.T) {
	c, store, bus, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: "", Value: "0", Data: "0x6080604052"})
	require.NoError(t, err)
	assert.True(t, rec.IsContractCreation())

	hash, err := c.ApproveAndSubmit(ctx, rec.ID)
	require.NoError(t, err)

	evt := waitEvent(t, sub, event.TypeContractCreated, rec.ID)
	assert.Equal(t, hash, evt.TxHash)
	assert.NotEmpty(t, evt.DeployedAddress)

	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, evt.DeployedAddress, stored.DeployedAddress)
}

func TestMarkConfirmed(t *testing.T) {
	c, store, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	// sent 之前不允许 confirm
	err = c.MarkConfirmed(ctx, rec.ID)
	assert.True(t, errno.ErrInvalidState.Is(err))

	_, err = c.ApproveAndSubmit(ctx, rec.ID)
	require.NoError(t, err)

	require.NoError(t, c.MarkConfirmed(ctx, rec.ID))
	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
}

func TestDeleteRecordOnlyTerminal(t *testing.T) {
	c, store, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	err = c.DeleteRecord(ctx, rec.ID)
	assert.True(t, errno.ErrInvalidState.Is(err))

	require.NoError(t, c.Reject(ctx, rec.ID))
	require.NoError(t, c.DeleteRecord(ctx, rec.ID))

	_, err = store.GetRecord(ctx, rec.ID)
	assert.True(t, errno.ErrRecordNotFound.Is(err))
}

func TestEstimateGasWritesBack(t *testing.T) {
	c, store, _, _, client := newTestCoordinator(t)
	ctx := context.Background()

	rec, err := c.Enqueue(ctx, EnqueueInput{To: testAddr, Value: "1"})
	require.NoError(t, err)

	gas, err := c.EstimateGas(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30000), gas)

	stored, _ := store.GetRecord(ctx, rec.ID)
	assert.Equal(t, uint64(30000), stored.GasEstimate)

	// 估算失败不影响记录状态
	client.mu.Lock()
	client.estimateErr = errors.New("execution reverted")
	client.mu.Unlock()

	_, err = c.EstimateGas(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errno.ErrEstimation.Is(err))

	stored, _ = store.GetRecord(ctx, rec.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
}
