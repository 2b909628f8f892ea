package service

import (
	"context"
	"errors"
	"testing"

	"signer-core/internal/event"
	"signer-core/internal/model"
	"signer-core/pkg/compiler"
	"signer-core/pkg/errno"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctorABI = `[{"inputs":[{"internalType":"uint256","name":"supply","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`
const noCtorABI = `[{"inputs":[],"name":"ping","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

func newTestDeployer(t *testing.T, comp *fakeCompiler) (*Deployer, *memStore, *fakeClient, *event.Bus) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := newMemStore()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	client := &fakeClient{}

	coord := NewCoordinator(store, bus, &fakeAuth{}, client, key, 1337)
	d := NewDeployer(coord, bus, store, comp, "http://localhost:8545")
	return d, store, client, bus
}

func TestDeployFlow(t *testing.T) {
	comp := &fakeCompiler{artifact: &compiler.Artifact{
		ContractName: "Token",
		Bytecode:     "6080604052",
		ABI:          ctorABI,
	}}
	d, store, _, _ := newTestDeployer(t, comp)
	ctx := context.Background()

	st, err := d.Compile(ctx, "contract Token {}", "", "")
	require.NoError(t, err)
	assert.Equal(t, DeployCollectingParams, st.State)
	require.Len(t, st.ConstructorSlots, 1)
	assert.Equal(t, "supply", st.ConstructorSlots[0].Name)
	assert.Equal(t, "uint256", st.ConstructorSlots[0].Type)

	// 参数没填之前不允许部署
	_, err = d.Deploy(ctx)
	assert.True(t, errno.ErrValidation.Is(err))

	st, err = d.SubmitConstructorParams(model.ParamList{
		{Name: "supply", Type: "uint256", Value: "1000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1000000", st.ConstructorSlots[0].Value)

	st, err = d.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeploySucceeded, st.State)
	require.NotNil(t, st.Contract)
	assert.Equal(t, "Token", st.Contract.Name)
	assert.NotEmpty(t, st.Contract.Address)
	assert.NotEmpty(t, st.Contract.TxHash)

	// 合约实体已落库
	contracts, err := store.ListContracts(ctx, "http://localhost:8545")
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, st.Contract.Address, contracts[0].Address)
	assert.Equal(t, ctorABI, contracts[0].ABI)
}

func TestDeployWithoutConstructorParams(t *testing.T) {
	comp := &fakeCompiler{artifact: &compiler.Artifact{
		ContractName: "Ping",
		Bytecode:     "6080",
		ABI:          noCtorABI,
	}}
	d, _, _, _ := newTestDeployer(t, comp)
	ctx := context.Background()

	st, err := d.Compile(ctx, "contract Ping {}", "", "")
	require.NoError(t, err)
	assert.Empty(t, st.ConstructorSlots)

	// 无参构造可以直接部署
	st, err = d.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeploySucceeded, st.State)
}

func TestDeployRetryReusesArtifact(t *testing.T) {
	comp := &fakeCompiler{artifact: &compiler.Artifact{
		ContractName: "Token",
		Bytecode:     "6080604052",
		ABI:          ctorABI,
	}}
	d, _, client, _ := newTestDeployer(t, comp)
	ctx := context.Background()

	_, err := d.Compile(ctx, "contract Token {}", "", "")
	require.NoError(t, err)
	_, err = d.SubmitConstructorParams(model.ParamList{
		{Name: "supply", Type: "uint256", Value: "42"},
	})
	require.NoError(t, err)

	// 节点拒绝广播，流程进入 failed
	client.setSubmitErr(errors.New("nonce too low"))
	st, err := d.Deploy(ctx)
	require.Error(t, err)
	assert.Equal(t, DeployFailed, st.State)
	assert.Contains(t, st.Error, "nonce too low")

	// 重试复用编译产物，不重新编译
	st, err = d.Retry()
	require.NoError(t, err)
	assert.Equal(t, DeployCollectingParams, st.State)
	assert.Equal(t, 1, comp.callCount())

	client.setSubmitErr(nil)
	st, err = d.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeploySucceeded, st.State)
	assert.Equal(t, 1, comp.callCount())
}

func TestCompileErrorPreservedVerbatim(t *testing.T) {
	compileErr := errno.ErrCompile.WithMessage("ParserError: Expected ';' but got '}' --> Token.sol:7:1")
	comp := &fakeCompiler{err: compileErr}
	d, _, _, _ := newTestDeployer(t, comp)

	st, err := d.Compile(context.Background(), "contract Broken {", "", "")
	require.Error(t, err)
	assert.True(t, errno.ErrCompile.Is(err))
	assert.Equal(t, DeployFailed, st.State)
	// 编译器输出原样保留
	assert.Equal(t, compileErr.Message, st.Error)

	// 编译失败后重试回到 idle，可重新提交源码
	st, err = d.Retry()
	require.NoError(t, err)
	assert.Equal(t, DeployIdle, st.State)
}

func TestSubmitParamsWrongState(t *testing.T) {
	comp := &fakeCompiler{}
	d, _, _, _ := newTestDeployer(t, comp)

	_, err := d.SubmitConstructorParams(model.ParamList{})
	assert.True(t, errno.ErrInvalidState.Is(err))
}

func TestDeployerManager(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	comp := &fakeCompiler{}
	store := newMemStore()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	coord := NewCoordinator(store, bus, &fakeAuth{}, &fakeClient{}, key, 1337)

	m := NewDeployerManager(coord, bus, store, comp, "http://localhost:8545")

	d := m.NewFlow()
	got, err := m.Get(d.ID())
	require.NoError(t, err)
	assert.Same(t, d, got)

	m.Drop(d.ID())
	_, err = m.Get(d.ID())
	assert.True(t, errno.ErrRecordNotFound.Is(err))
}
