package service

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"signer-core/internal/model"
	"signer-core/pkg/errno"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ParseABI 解析 ABI JSON (外部 AbiParser 协作者的落地实现)
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, errno.ErrValidation.WithMessage("invalid ABI: %v", err)
	}
	return &parsed, nil
}

// coerceArg 把用户填写的字面值转换为 abi.Pack 需要的 Go 类型
// 覆盖表单里常用的基础类型；数组/元组等复杂类型直接报错提示
func coerceArg(t abi.Type, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch t.T {
	case abi.UintTy, abi.IntTy:
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		// abi.Pack 对 8/16/32/64 位要求原生 Go 整型，其余尺寸用 *big.Int
		switch t.Size {
		case 8, 16, 32, 64:
			if t.T == abi.UintTy {
				u, err := strconv.ParseUint(raw, 10, t.Size)
				if err != nil {
					return nil, fmt.Errorf("%q does not fit uint%d", raw, t.Size)
				}
				switch t.Size {
				case 8:
					return uint8(u), nil
				case 16:
					return uint16(u), nil
				case 32:
					return uint32(u), nil
				default:
					return u, nil
				}
			}
			i, err := strconv.ParseInt(raw, 10, t.Size)
			if err != nil {
				return nil, fmt.Errorf("%q does not fit int%d", raw, t.Size)
			}
			switch t.Size {
			case 8:
				return int8(i), nil
			case 16:
				return int16(i), nil
			case 32:
				return int32(i), nil
			default:
				return i, nil
			}
		default:
			return v, nil
		}
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%q is not an address", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		b, err := parseHexData(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not hex bytes", raw)
		}
		return b, nil
	case abi.FixedBytesTy:
		b, err := parseHexData(raw)
		if err != nil || len(b) != t.Size {
			return nil, fmt.Errorf("%q is not bytes%d", raw, t.Size)
		}
		// abi.Pack 需要定长数组，常用的 bytes32 单独处理
		if t.Size == 32 {
			var arr [32]byte
			copy(arr[:], b)
			return arr, nil
		}
		return nil, fmt.Errorf("bytes%d parameters are not supported", t.Size)
	default:
		return nil, fmt.Errorf("parameter type %s is not supported", t.String())
	}
}

// coerceArgs 按输入定义批量转换参数
func coerceArgs(inputs abi.Arguments, params model.ParamList) ([]interface{}, error) {
	if len(params) != len(inputs) {
		return nil, errno.ErrValidation.WithMessage("expected %d parameters, got %d", len(inputs), len(params))
	}
	args := make([]interface{}, len(inputs))
	for i, input := range inputs {
		v, err := coerceArg(input.Type, params[i].Value)
		if err != nil {
			name := input.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			return nil, errno.ErrValidation.WithMessage("parameter %s: %v", name, err)
		}
		args[i] = v
	}
	return args, nil
}

// paramSlots 把 ABI 输入定义转成空白参数槽给表单填写
func paramSlots(inputs abi.Arguments) model.ParamList {
	slots := make(model.ParamList, 0, len(inputs))
	for i, in := range inputs {
		name := in.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		slots = append(slots, model.CallParam{Name: name, Type: in.Type.String()})
	}
	return slots
}
