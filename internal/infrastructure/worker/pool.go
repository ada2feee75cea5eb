package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"wealthledger/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("工作池已关闭")
	ErrQueueFull  = errors.New("工作池队列已满")
)

// Task 提交到工作池的任务，ctx 随工作池生命周期
type Task func(ctx context.Context)

// Pool 固定数量的 goroutine 消费有界队列
//
// 由 main 显式创建后注入结算服务和调度器，Stop 之后 Submit 一律返回 ErrPoolClosed。
type Pool struct {
	tasks  chan Task
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(size, queueSize int, log *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queueSize),
		log:    log.Named("WorkerPool"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit 非阻塞提交，队列满时返回 ErrQueueFull
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		metrics.RecordPoolTask("rejected")
		return ErrQueueFull
	}
}

// Stop 停止接收任务，等待队列中已有的任务执行完
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.log.Info("工作池已停止")
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPoolTask("panic")
			p.log.Error("任务执行 panic",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	task(p.ctx)
	metrics.RecordPoolTask("done")
}
