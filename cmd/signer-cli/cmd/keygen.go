package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"syscall"

	"signer-core/pkg/keystore"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "生成热钱包私钥并保存为加密 Keystore",
	Long:  `生成一个新的 secp256k1 私钥，使用密码加密后保存为 Keystore JSON 文件。`,
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")

		// 1. 生成私钥
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Printf("生成私钥失败: %v\n", err)
			os.Exit(1)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)

		// 2. 输入密码
		fmt.Print("请设置 Keystore 密码: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\n读取密码失败:", err)
			os.Exit(1)
		}
		fmt.Println()

		fmt.Print("请再次输入密码确认: ")
		confirm, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\n读取密码失败:", err)
			os.Exit(1)
		}
		fmt.Println()

		if string(bytePassword) != string(confirm) {
			fmt.Println("两次输入的密码不一致")
			os.Exit(1)
		}

		// 3. 加密并保存
		hexKey := hex.EncodeToString(crypto.FromECDSA(key))
		encrypted, err := keystore.EncryptKey(hexKey, string(bytePassword))
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}

		if err := encrypted.SaveToFile(outputFile); err != nil {
			fmt.Printf("保存 Keystore 失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("\n================ Keystore 已生成 ================")
		fmt.Printf("Address:  %s\n", addr.Hex())
		fmt.Printf("File:     %s\n", outputFile)
		fmt.Println("=================================================")
	},
}

func init() {
	keygenCmd.Flags().StringP("output", "o", "signer.json", "Keystore 输出路径")
	rootCmd.AddCommand(keygenCmd)
}
