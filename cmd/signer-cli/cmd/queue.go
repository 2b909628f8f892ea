package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "查看交易队列",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/tx"
		if status != "" {
			path += "?status=" + status
		}

		raw, err := callAPI(http.MethodGet, path, nil)
		if err != nil {
			fmt.Println("查询失败:", err)
			os.Exit(1)
		}

		var records []struct {
			ID           string `json:"id"`
			ToAddress    string `json:"to_address"`
			Value        string `json:"value"`
			FunctionName string `json:"function_name"`
			Status       string `json:"status"`
			TxHash       string `json:"tx_hash"`
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			fmt.Println("响应解析失败:", err)
			os.Exit(1)
		}

		if len(records) == 0 {
			fmt.Println("队列为空")
			return
		}

		for _, r := range records {
			fmt.Printf("%s  %-9s  to=%s  value=%s", r.ID, r.Status, r.ToAddress, r.Value)
			if r.FunctionName != "" {
				fmt.Printf("  fn=%s", r.FunctionName)
			}
			if r.TxHash != "" {
				fmt.Printf("  hash=%s", r.TxHash)
			}
			fmt.Println()
		}
	},
}

func init() {
	queueCmd.Flags().StringP("status", "s", "pending", "按状态过滤 (留空则列出全部)")
	rootCmd.AddCommand(queueCmd)
}
