package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    TxStatus
		to      TxStatus
		allowed bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusSent, true},
		{StatusApproved, StatusFailed, true},
		{StatusSent, StatusConfirmed, true},
		{StatusSent, StatusFailed, true},

		// 不允许跳过 approved
		{StatusPending, StatusSent, false},
		{StatusPending, StatusConfirmed, false},
		// 不允许回退
		{StatusApproved, StatusPending, false},
		{StatusSent, StatusPending, false},
		{StatusRejected, StatusPending, false},
		// 终态不再流转
		{StatusConfirmed, StatusFailed, false},
		{StatusFailed, StatusSent, false},
		{StatusRejected, StatusApproved, false},
		// approved 不能直接 rejected (驳回只针对 pending)
		{StatusApproved, StatusRejected, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransitionTo(c.to),
			"%s -> %s", c.from, c.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

func TestRecordKind(t *testing.T) {
	deploy := &TransactionRecord{ToAddress: "", Data: "0x6080"}
	call := &TransactionRecord{ToAddress: "0x1111111111111111111111111111111111111111", Data: "0xa9059cbb"}
	transfer := &TransactionRecord{ToAddress: "0x1111111111111111111111111111111111111111"}

	assert.Equal(t, "deploy", deploy.Kind())
	assert.True(t, deploy.IsContractCreation())
	assert.Equal(t, "call", call.Kind())
	assert.Equal(t, "transfer", transfer.Kind())
}
