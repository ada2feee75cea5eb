package job

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CreditRetrier 重新入账 PENDING 的结算回款
type CreditRetrier interface {
	RetryPendingCredits(ctx context.Context, limit int) (int, error)
}

// CreditRetryJob 结算回款补偿任务
//
// 回款入队失败、入账失败或进程在入账前退出，回款都会停在 PENDING，
// 这里定期捞出来重新入账。
type CreditRetryJob struct {
	retrier   CreditRetrier
	log       *zap.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewCreditRetryJob(retrier CreditRetrier, interval time.Duration, log *zap.Logger) *CreditRetryJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CreditRetryJob{
		retrier:   retrier,
		log:       log.Named("CreditRetryJob"),
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 100,
	}
}

func (j *CreditRetryJob) Start(ctx context.Context) {
	j.log.Info("回款补偿任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.retry(ctx)
		}
	}
}

func (j *CreditRetryJob) Stop() {
	close(j.stopCh)
}

func (j *CreditRetryJob) retry(ctx context.Context) {
	done, err := j.retrier.RetryPendingCredits(ctx, j.batchSize)
	if err != nil {
		j.log.Error("回款补偿失败", zap.Error(err))
		return
	}
	if done > 0 {
		j.log.Info("回款补偿完成", zap.Int("count", done))
	}
}
