package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wealthledger/internal/config"
	"wealthledger/internal/event"
	"wealthledger/internal/handler"
	"wealthledger/internal/infrastructure/cache"
	"wealthledger/internal/infrastructure/database"
	"wealthledger/internal/infrastructure/lock"
	"wealthledger/internal/infrastructure/logger"
	"wealthledger/internal/infrastructure/mq"
	"wealthledger/internal/infrastructure/worker"
	"wealthledger/internal/job"
	"wealthledger/internal/repository"
	"wealthledger/internal/service"
	"wealthledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	os.Exit(exitCode(zlog, run(cfg, zlog)))
}

// exitCode 记录退出原因并刷盘日志。zap.Fatal 会跳过 defer 的 Sync，这里不用它
func exitCode(zlog *zap.Logger, err error) int {
	code := 0
	if err != nil {
		zlog.Error("服务异常退出", zap.Error(err))
		code = 1
	}
	_ = zlog.Sync()
	return code
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	if err := idgen.Init(cfg.Server.NodeID); err != nil {
		return fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}

	defaultRate, err := decimal.NewFromString(cfg.Business.DefaultAnnualRate)
	if err != nil {
		return fmt.Errorf("business.default_annual_rate 不合法: %w", err)
	}

	db, err := database.InitMySQL(&cfg.MySQL, zlog)
	if err != nil {
		return err
	}
	store := repository.NewGormStore(db)

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	zlog.Info("Redis 连接成功", zap.String("addr", cfg.Redis.Addr()))

	var producer mq.Producer = mq.LogProducer{Log: zlog.Named("Event")}
	if cfg.Kafka.Enabled {
		kafkaProducer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		producer = kafkaProducer
		zlog.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	defer producer.Close()

	lockTTL := time.Duration(cfg.Business.LockTTLSeconds) * time.Second
	locker := lock.NewRedisLocker(redisClient, lockTTL)
	balanceCache := cache.NewRedisBalanceCache(redisClient, 10*time.Minute)
	topics := event.Topics{Fund: cfg.Kafka.Topic.Fund, Product: cfg.Kafka.Topic.Product}

	pool := worker.NewPool(cfg.Business.WorkerPoolSize, cfg.Business.WorkerQueueSize, zlog)
	defer pool.Stop()

	ledgerSvc := service.NewLedgerService(store, locker, balanceCache, zlog)
	settlementSvc := service.NewSettlementService(store, ledgerSvc, pool, topics, cfg.Business.MaxRetryCount, zlog)

	scheduler := job.NewSettlementScheduler(store, settlementSvc, pool,
		time.Duration(cfg.Business.SettlementSweepSeconds)*time.Second, zlog)
	defer scheduler.Stop()

	accrualJob := job.NewInterestAccrualJob(store, locker, defaultRate, cfg.Business.AccrualCron, zlog)

	h := handler.NewHandler(handler.Services{
		Ledger:     ledgerSvc,
		Recharge:   service.NewRechargeService(store, ledgerSvc, topics, zlog),
		Withdrawal: service.NewWithdrawalService(store, ledgerSvc, topics, zlog),
		Financial:  service.NewFinancialService(store, ledgerSvc, zlog),
		Product:    service.NewProductService(store, ledgerSvc, scheduler, zlog),
		Settlement: settlementSvc,
		User:       service.NewUserService(store, zlog),
		Accrual:    accrualJob,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 进程重启后恢复结算定时器，已到期的产品立即结算
	if _, err := scheduler.RecoverOnStartup(ctx); err != nil {
		return fmt.Errorf("恢复结算调度失败: %w", err)
	}
	go scheduler.Start(ctx)

	if err := accrualJob.Start(); err != nil {
		return err
	}
	defer accrualJob.Stop()

	outboxSender := job.NewOutboxSender(store, producer, cfg.Business.MaxRetryCount, zlog)
	go outboxSender.Start(ctx)

	creditRetryJob := job.NewCreditRetryJob(settlementSvc,
		time.Duration(cfg.Business.CreditRetrySeconds)*time.Second, zlog)
	go creditRetryJob.Start(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h, zlog),
	}

	go func() {
		zlog.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("服务启动失败", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	zlog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("服务关闭异常", zap.Error(err))
	}

	zlog.Info("服务已关闭")
	return nil
}
