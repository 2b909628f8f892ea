package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "入队一笔转账交易 (进入待审批队列)",
	Run: func(cmd *cobra.Command, args []string) {
		to, _ := cmd.Flags().GetString("to")
		value, _ := cmd.Flags().GetString("value")
		data, _ := cmd.Flags().GetString("data")

		body := map[string]string{
			"to":    to,
			"value": value,
		}
		if data != "" {
			body["data"] = data
		}

		raw, err := callAPI(http.MethodPost, "/api/v1/tx", body)
		if err != nil {
			fmt.Println("入队失败:", err)
			os.Exit(1)
		}

		var record struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			fmt.Println("响应解析失败:", err)
			os.Exit(1)
		}

		fmt.Println("交易已入队，等待审批")
		fmt.Printf("Record ID: %s\n", record.ID)
		fmt.Printf("Status:    %s\n", record.Status)
	},
}

func init() {
	sendCmd.Flags().StringP("to", "t", "", "接收方地址 (0x...)")
	sendCmd.Flags().StringP("value", "v", "0", "转账金额 (wei, 十进制整数)")
	sendCmd.Flags().StringP("data", "d", "", "可选 calldata (0x...)")
	sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}
