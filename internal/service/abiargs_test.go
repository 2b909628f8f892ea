package service

import (
	"math/big"
	"testing"

	"signer-core/internal/model"
	"signer-core/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const argsABI = `[{"inputs":[
	{"internalType":"uint256","name":"big","type":"uint256"},
	{"internalType":"uint8","name":"small","type":"uint8"},
	{"internalType":"int64","name":"signed","type":"int64"},
	{"internalType":"bool","name":"flag","type":"bool"},
	{"internalType":"address","name":"who","type":"address"},
	{"internalType":"string","name":"label","type":"string"},
	{"internalType":"bytes","name":"blob","type":"bytes"},
	{"internalType":"bytes32","name":"digest","type":"bytes32"}
],"name":"everything","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

func TestCoerceArgs(t *testing.T) {
	parsed, err := ParseABI(argsABI)
	require.NoError(t, err)
	inputs := parsed.Methods["everything"].Inputs

	args, err := coerceArgs(inputs, model.ParamList{
		{Value: "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		{Value: "255"},
		{Value: "-42"},
		{Value: "true"},
		{Value: "0x1111111111111111111111111111111111111111"},
		{Value: "hello"},
		{Value: "0xdeadbeef"},
		{Value: "0x" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"},
	})
	require.NoError(t, err)
	require.Len(t, args, 8)

	// 8/16/32/64 位用原生整型，其余尺寸用 *big.Int
	assert.IsType(t, &big.Int{}, args[0])
	assert.Equal(t, uint8(255), args[1])
	assert.Equal(t, int64(-42), args[2])
	assert.Equal(t, true, args[3])
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), args[4])
	assert.Equal(t, "hello", args[5])
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, args[6])
	assert.IsType(t, [32]byte{}, args[7])

	// 编码走完整路径
	_, err = parsed.Pack("everything", args...)
	require.NoError(t, err)
}

func TestCoerceArgsErrors(t *testing.T) {
	parsed, err := ParseABI(argsABI)
	require.NoError(t, err)
	inputs := parsed.Methods["everything"].Inputs

	// 参数个数不匹配
	_, err = coerceArgs(inputs, model.ParamList{{Value: "1"}})
	assert.True(t, errno.ErrValidation.Is(err))

	base := model.ParamList{
		{Value: "1"}, {Value: "1"}, {Value: "1"}, {Value: "true"},
		{Value: "0x1111111111111111111111111111111111111111"},
		{Value: "x"}, {Value: "0x00"},
		{Value: "0x" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"},
	}

	cases := []struct {
		index int
		value string
	}{
		{0, "3.14"},            // 非整数
		{1, "256"},             // 超出 uint8
		{2, "not-a-number"},    // 非法整数
		{3, "yes-please"},      // 非法布尔
		{4, "0x1234"},          // 非法地址
		{6, "0xzz"},            // 非法 Hex
		{7, "0x0011"},          // 长度不是 32 字节
	}
	for _, c := range cases {
		params := make(model.ParamList, len(base))
		copy(params, base)
		params[c.index].Value = c.value

		_, err := coerceArgs(inputs, params)
		require.Error(t, err, "index %d value %q", c.index, c.value)
		assert.True(t, errno.ErrValidation.Is(err), "index %d value %q: got %v", c.index, c.value, err)
	}
}

func TestParamSlots(t *testing.T) {
	parsed, err := ParseABI(argsABI)
	require.NoError(t, err)

	slots := paramSlots(parsed.Methods["everything"].Inputs)
	require.Len(t, slots, 8)
	assert.Equal(t, "big", slots[0].Name)
	assert.Equal(t, "uint256", slots[0].Type)
	assert.Empty(t, slots[0].Value)
	assert.Equal(t, "digest", slots[7].Name)
	assert.Equal(t, "bytes32", slots[7].Type)
}

func TestParseWei(t *testing.T) {
	v, err := parseWei("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = parseWei("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	for _, bad := range []string{"1.5", "-1", "1e18", "wei"} {
		_, err := parseWei(bad)
		assert.True(t, errno.ErrValidation.Is(err), "input %q", bad)
	}
}
