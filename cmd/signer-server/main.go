package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signer-core/internal/event"
	"signer-core/internal/handler"
	"signer-core/internal/server"
	"signer-core/internal/service"
	"signer-core/internal/service/mq"
	"signer-core/pkg/auth"
	"signer-core/pkg/chain"
	"signer-core/pkg/compiler"
	"signer-core/pkg/config"
	"signer-core/pkg/database"
	"signer-core/pkg/keystore"
	"signer-core/pkg/logger"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// @title Signer Core API
// @version 1.0
// @description Transaction Queueing & Signing Coordinator API

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 构造 DSN 并连接数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3. 加载热钱包签名私钥
	key, err := loadSignerKey()
	if err != nil {
		logger.Fatal("致命错误: 无法加载签名私钥!", zap.Error(err))
	}
	logger.Info("🔐 签名私钥加载成功", zap.String("address", crypto.PubkeyToAddress(key.PublicKey).Hex()))

	// 4. 连接节点 RPC
	rpcURL := config.Global.Chain.RpcUrl
	client, err := chain.Dial(rpcURL)
	if err != nil {
		logger.Fatal("RPC 连接失败", zap.String("rpc_url", rpcURL), zap.Error(err))
	}

	// 5. 组装核心组件: 事件总线 / 队列 / 协调器
	bus := event.NewBus()
	defer bus.Close()

	store := service.NewGormStore(db)
	authn := auth.NewStaticAuthenticator(config.Global.Signer.Passcode)
	coord := service.NewCoordinator(store, bus, authn, client, key, config.Global.Chain.ChainID)

	solc := compiler.NewSolcCompiler(config.Global.Chain.SolcPath)
	deployManager := service.NewDeployerManager(coord, bus, store, solc, rpcURL)
	invoker := service.NewInvoker(coord, bus, store, client, coord.From())

	// 6. 启动 Outbox Relay (终态审计事件 -> MQ)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := newProducer()
	defer producer.Close()
	relay := service.NewRelayService(db, producer)
	go relay.Start(ctx)

	// 7. 启动 HTTP Server
	router := server.NewHTTPRouter(
		handler.NewTxHandler(coord),
		handler.NewDeployHandler(deployManager),
		handler.NewContractHandler(store, invoker, rpcURL),
	)

	srv := &http.Server{
		Addr:    ":" + config.Global.App.HttpPort,
		Handler: router,
	}

	go func() {
		logger.Info("启动签名服务 (Signer Server)...", zap.String("port", config.Global.App.HttpPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP Server 异常退出", zap.Error(err))
		}
	}()

	// 8. 优雅退出
	<-ctx.Done()
	logger.Info("收到退出信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server 关闭失败", zap.Error(err))
	}
	logger.Info("服务已退出")
}

// loadSignerKey 优先从本地 Keystore 文件加载加密的私钥
// 找不到文件时回退到环境变量 SIGNER_PRIVATE_KEY (仅限开发环境)
func loadSignerKey() (*ecdsa.PrivateKey, error) {
	keystorePath := config.Global.Signer.KeystorePath
	keystorePassword := config.Global.Signer.Password

	if _, err := os.Stat(keystorePath); err == nil {
		logger.Info("发现本地 Keystore 文件，尝试加载...", zap.String("path", keystorePath))

		if keystorePassword == "" {
			return nil, fmt.Errorf("keystore password not provided (env SIGNER_PASSWORD)")
		}

		encryptedKey, err := keystore.LoadFromFile(keystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore: %w", err)
		}

		hexKey, err := keystore.DecryptKey(encryptedKey, keystorePassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return crypto.HexToECDSA(hexKey)
	}

	if hexKey := os.Getenv("SIGNER_PRIVATE_KEY"); hexKey != "" {
		logger.Warn("⚠️  未找到 Keystore 文件，使用环境变量中的明文私钥 (仅限开发环境使用!)")
		return crypto.HexToECDSA(hexKey)
	}

	return nil, fmt.Errorf("no keystore file at %s and SIGNER_PRIVATE_KEY not set", keystorePath)
}

// newProducer 按配置选择 Kafka 或 Redis Stream 作为审计事件出口
func newProducer() mq.Producer {
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为审计事件 MQ", zap.Strings("brokers", config.Global.Kafka.Brokers))
		return mq.NewKafkaProducer(config.Global.Kafka.Brokers, service.OutboxTopicTx)
	}

	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	logger.Info("使用 Redis Stream 作为审计事件 MQ", zap.String("addr", config.Global.Redis.Addr))
	return mq.NewRedisProducer(rdb)
}
