package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"signer-core/pkg/errno"
)

// SolcCompiler 调用本地 solc 二进制实现 Compiler 接口
type SolcCompiler struct {
	solcPath string
}

func NewSolcCompiler(solcPath string) *SolcCompiler {
	if solcPath == "" {
		solcPath = "solc"
	}
	return &SolcCompiler{solcPath: solcPath}
}

// combinedOutput 对应 solc --combined-json bin,abi 的输出结构
type combinedOutput struct {
	Contracts map[string]struct {
		Bin string          `json:"bin"`
		ABI json.RawMessage `json:"abi"`
	} `json:"contracts"`
	Version string `json:"version"`
}

func (c *SolcCompiler) Compile(ctx context.Context, source string, contractName string, version string) (*Artifact, error) {
	// 1. 源码写入临时文件 (solc 不接受 stdin + combined-json 的组合在老版本上不稳定)
	dir, err := os.MkdirTemp("", "solc-input-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	srcFile := filepath.Join(dir, "input.sol")
	if err := os.WriteFile(srcFile, []byte(source), 0o600); err != nil {
		return nil, err
	}

	// 2. 校验编译器版本 (用户在部署表单里选择了版本)
	if version != "" {
		if err := c.checkVersion(ctx, version); err != nil {
			return nil, err
		}
	}

	// 3. 编译
	cmd := exec.CommandContext(ctx, c.solcPath, "--combined-json", "bin,abi", srcFile)
	out, err := cmd.Output()
	if err != nil {
		// solc 的报错在 stderr，必须原样透给用户
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, errno.ErrCompile.WithMessage("%s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, errno.ErrCompile.WithMessage("solc invocation failed: %v", err)
	}

	var parsed combinedOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, errno.ErrCompile.WithMessage("unreadable solc output: %v", err)
	}
	if len(parsed.Contracts) == 0 {
		return nil, errno.ErrCompile.WithMessage("source contains no contracts")
	}

	// 4. 选择目标合约
	// combined-json 的 key 形如 "/tmp/xxx/input.sol:MyToken"
	key, err := pickContract(parsed.Contracts, contractName)
	if err != nil {
		return nil, err
	}
	entry := parsed.Contracts[key]

	// abi 字段在新版 solc 中是 JSON 数组，老版本是字符串，统一成 JSON 文本
	abiJSON := string(entry.ABI)
	var abiStr string
	if json.Unmarshal(entry.ABI, &abiStr) == nil {
		abiJSON = abiStr
	}

	name := key[strings.LastIndex(key, ":")+1:]
	return &Artifact{
		ContractName: name,
		Bytecode:     entry.Bin,
		ABI:          abiJSON,
	}, nil
}

func pickContract(contracts map[string]struct {
	Bin string          `json:"bin"`
	ABI json.RawMessage `json:"abi"`
}, contractName string) (string, error) {
	if contractName == "" {
		if len(contracts) > 1 {
			names := make([]string, 0, len(contracts))
			for k := range contracts {
				names = append(names, k[strings.LastIndex(k, ":")+1:])
			}
			return "", errno.ErrCompile.WithMessage("source defines multiple contracts (%s), specify one", strings.Join(names, ", "))
		}
		for k := range contracts {
			return k, nil
		}
	}
	for k := range contracts {
		if strings.HasSuffix(k, ":"+contractName) {
			return k, nil
		}
	}
	return "", errno.ErrCompile.WithMessage("contract %q not found in source", contractName)
}

func (c *SolcCompiler) checkVersion(ctx context.Context, want string) error {
	out, err := exec.CommandContext(ctx, c.solcPath, "--version").Output()
	if err != nil {
		return errno.ErrCompile.WithMessage("cannot determine solc version: %v", err)
	}
	if !strings.Contains(string(out), want) {
		return errno.ErrCompile.WithMessage("compiler version mismatch: want %s, have %s",
			want, strings.TrimSpace(lastLine(string(out))))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return fmt.Sprint(lines[len(lines)-1])
}
