package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 用户维度的账本锁
// ============================================================================
//
// 同一用户的所有资金写入（记账、充值审核、提现审核、理财转入转出、收益计提、
// 结算入账）都必须先拿到这把锁，再开事务，提交后才释放：
//
//   goroutine1: 获取锁 -> 读余额=100 -> 扣款100 -> 余额=0 -> 提交 -> 释放锁
//   goroutine2: 等待... -> 获取锁 -> 读余额=0 -> 余额不足，拒绝
//
// 生产环境用 Redis 锁，多实例之间互斥；单机和测试用 KeyedLocker。
// 锁之外数据库还有一层兜底：尾部读取 FOR UPDATE + (user_id, seq) 唯一索引。
//
// 加锁：SET key token NX EX ttl
// 释放：Lua 脚本比较 token 后删除，避免锁过期后误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Locker 按 key 互斥，返回的 unlock 必须调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserKey 用户账本锁的 key
func UserKey(userID int64) string {
	return fmt.Sprintf("ledger:lock:user:%d", userID)
}

// ============================================================================
// Redis 实现
// ============================================================================

type RedisLocker struct {
	client        redis.Cmdable
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
	token         func() string
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    100,
		token:         uuid.NewString,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *RedisLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	return l.client.SetNX(ctx, key, token, l.ttl).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := l.token()
	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.TryLock(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockFailed, err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return nil, ErrLockFailed
}

func (l *RedisLocker) unlock(key, token string) {
	// 调用方的 ctx 可能已经取消，释放锁用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = l.client.Eval(ctx, unlockScript, []string{key}, token).Err()
}

// ============================================================================
// 进程内实现
// ============================================================================

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker 进程内按 key 互斥，不同 key 互不阻塞
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.release(key, e)
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) release(key string, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
