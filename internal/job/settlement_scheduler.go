package job

import (
	"context"
	"sync"
	"time"

	"wealthledger/internal/infrastructure/metrics"
	"wealthledger/internal/infrastructure/worker"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"

	"go.uber.org/zap"
)

// Settler 执行单个产品的结算
type Settler interface {
	Settle(ctx context.Context, productID int64) error
}

// Submitter 异步任务队列
type Submitter interface {
	Submit(task worker.Task) error
}

// SettlementScheduler 产品到期结算调度
//
// 每个产品按 maturity_time 挂一个一次性定时器，到点后把结算任务提交到工作池。
// 已过期的产品直接提交。定时器只在内存里，进程重启后由 RecoverOnStartup
// 从数据库里的 maturity_time 重新挂上；定期扫描兜底提交失败的产品。
type SettlementScheduler struct {
	store     repository.Store
	settler   Settler
	pool      Submitter
	log       *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	armed   map[int64]*time.Timer // nil 表示已提交、等待执行
	stopped bool
	stopCh  chan struct{}
}

func NewSettlementScheduler(store repository.Store, settler Settler, pool Submitter, interval time.Duration, log *zap.Logger) *SettlementScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SettlementScheduler{
		store:     store,
		settler:   settler,
		pool:      pool,
		log:       log.Named("SettlementScheduler"),
		interval:  interval,
		batchSize: 500,
		now:       time.Now,
		armed:     make(map[int64]*time.Timer),
		stopCh:    make(chan struct{}),
	}
}

// Schedule 为产品安排结算，同一个产品不会重复挂定时器
func (s *SettlementScheduler) Schedule(product *model.ProductHolding) {
	if product == nil || product.Status != model.ProductStatusActive {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, ok := s.armed[product.ID]; ok {
		s.mu.Unlock()
		return
	}

	productID := product.ID
	delay := product.MaturityTime.Sub(s.now())
	if delay <= 0 {
		s.armed[productID] = nil
		s.mu.Unlock()
		s.submit(productID)
		return
	}

	s.armed[productID] = time.AfterFunc(delay, func() { s.fire(productID) })
	metrics.SetScheduledProducts(len(s.armed))
	s.mu.Unlock()

	s.log.Debug("结算定时器已挂载", zap.Int64("product_id", productID), zap.Duration("delay", delay))
}

// Armed 当前已挂定时器或已提交未完成的产品数
func (s *SettlementScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

func (s *SettlementScheduler) fire(productID int64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.armed[productID] = nil
	s.mu.Unlock()
	s.submit(productID)
}

func (s *SettlementScheduler) submit(productID int64) {
	err := s.pool.Submit(func(ctx context.Context) {
		defer s.release(productID)
		if err := s.settler.Settle(ctx, productID); err != nil {
			s.log.Error("产品结算失败", zap.Int64("product_id", productID), zap.Error(err))
		}
	})
	if err != nil {
		s.release(productID)
		s.log.Warn("结算任务提交失败，等待下次扫描", zap.Int64("product_id", productID), zap.Error(err))
	}
}

func (s *SettlementScheduler) release(productID int64) {
	s.mu.Lock()
	delete(s.armed, productID)
	metrics.SetScheduledProducts(len(s.armed))
	s.mu.Unlock()
}

// RecoverOnStartup 进程启动时扫描所有持有中的产品：已到期的立即结算，未到期的重新挂定时器
func (s *SettlementScheduler) RecoverOnStartup(ctx context.Context) (int, error) {
	products, err := s.store.Products().ListByStatus(ctx, model.ProductStatusActive)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		s.Schedule(p)
	}
	s.log.Info("结算调度恢复完成", zap.Int("products", len(products)))
	return len(products), nil
}

// Start 定期扫描已到期但还没结算的产品，阻塞到 ctx 取消或 Stop
func (s *SettlementScheduler) Start(ctx context.Context) {
	s.log.Info("结算扫描任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SettlementScheduler) sweep(ctx context.Context) {
	products, err := s.store.Products().ListDue(ctx, s.now(), s.batchSize)
	if err != nil {
		s.log.Error("查询到期产品失败", zap.Error(err))
		return
	}
	if len(products) == 0 {
		return
	}
	s.log.Info("发现到期未结算产品", zap.Int("count", len(products)))
	for _, p := range products {
		s.Schedule(p)
	}
}

// Stop 取消所有未触发的定时器
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for id, t := range s.armed {
		if t != nil {
			t.Stop()
		}
		delete(s.armed, id)
	}
	close(s.stopCh)
}
