package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var approveCmd = &cobra.Command{
	Use:   "approve <record-id>",
	Short: "审批并提交一笔待处理交易",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]

		fmt.Print("请输入审批口令 (直接回车跳过): ")
		passcode, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\n读取口令失败:", err)
			os.Exit(1)
		}
		fmt.Println()

		body := map[string]string{"passcode": string(passcode)}
		raw, err := callAPI(http.MethodPost, "/api/v1/tx/"+recordID+"/approve", body)
		if err != nil {
			fmt.Println("审批失败:", err)
			os.Exit(1)
		}

		var result struct {
			TxHash string `json:"tx_hash"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			fmt.Println("响应解析失败:", err)
			os.Exit(1)
		}

		fmt.Println("交易已提交上链")
		fmt.Printf("Record ID: %s\n", recordID)
		fmt.Printf("Tx Hash:   %s\n", result.TxHash)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <record-id>",
	Short: "拒绝一笔待处理交易",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]

		if _, err := callAPI(http.MethodPost, "/api/v1/tx/"+recordID+"/reject", nil); err != nil {
			fmt.Println("拒绝失败:", err)
			os.Exit(1)
		}
		fmt.Printf("交易 %s 已拒绝\n", recordID)
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}
