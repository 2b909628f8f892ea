package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverURL 全局标志: 签名服务地址
var serverURL string

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "signer-cli",
	Short: "交易签名服务命令行工具",
	Long: `签名服务 (signer-core) 的命令行客户端。
支持生成加密 Keystore、入队转账、查看待签队列以及审批提交交易。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "签名服务地址")
}
