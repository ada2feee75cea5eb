package repository

import (
	"context"
	"errors"
	"time"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 存储契约
// ============================================================================
//
// 业务层只依赖这里的接口。GormStore 是 MySQL 实现，memory 包提供内存实现
// 用于测试和本地调试。
//
// 约定：
//   - 单条查询不存在时返回 apperr.ErrNotFound 类别的错误；
//     Latest*/Find* 类查询不存在时返回 (nil, nil)
//   - 条件更新影响行数为 0 时返回 apperr.ErrInvalidStateTransition
//   - 其余存储错误统一包装为 apperr.ErrSystem
//
// ============================================================================

type LedgerRepository interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	GetByID(ctx context.Context, id int64) (*model.LedgerEntry, error)
	// LatestActive 读取用户最新一条生效流水（账本尾部），加行锁
	LatestActive(ctx context.Context, userID int64) (*model.LedgerEntry, error)
	FindByBusinessID(ctx context.Context, userID int64, fundType model.FundType, businessID string) (*model.LedgerEntry, error)
	// Activate 将待审核流水置为生效，写入序号和余额
	Activate(ctx context.Context, id int64, seq int64, balanceAfter decimal.Decimal) error
	// Refuse 将待审核流水置为拒绝
	Refuse(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, from, to model.FlowStatus) error
	Find(ctx context.Context, filter model.LedgerFilter) ([]*model.LedgerEntry, error)
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error)
}

type HoldingRepository interface {
	Create(ctx context.Context, holding *model.FinancialHolding) error
	GetByID(ctx context.Context, id int64) (*model.FinancialHolding, error)
	LatestByUserID(ctx context.Context, userID int64) (*model.FinancialHolding, error)
	// AddPrincipal 本金增加 delta，并将持仓置为 HOLDING
	AddPrincipal(ctx context.Context, id int64, delta decimal.Decimal) error
	// DeductPrincipal 本金不足时返回 apperr.ErrInsufficientFunds
	DeductPrincipal(ctx context.Context, id int64, amount decimal.Decimal) error
	ListAccruable(ctx context.Context) ([]*model.FinancialHolding, error)
}

type StatementRepository interface {
	Create(ctx context.Context, stmt *model.FinancialStatement) error
	Exists(ctx context.Context, holdingID int64, typ model.StatementType, bizDate string) (bool, error)
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.FinancialStatement, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.ProductHolding) error
	GetByID(ctx context.Context, id int64) (*model.ProductHolding, error)
	ListByStatus(ctx context.Context, status model.ProductStatus) ([]*model.ProductHolding, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]*model.ProductHolding, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.ProductHolding, error)
	// MarkCompleted ACTIVE -> COMPLETED，只会成功一次
	MarkCompleted(ctx context.Context, id int64, settledAt time.Time) error
}

type CreditRepository interface {
	Create(ctx context.Context, credit *model.SettlementCredit) error
	GetByID(ctx context.Context, id int64) (*model.SettlementCredit, error)
	ListPending(ctx context.Context, limit int) ([]*model.SettlementCredit, error)
	MarkDone(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, reason string, giveUp bool) error
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Save(ctx context.Context, user *model.User) error
}

type ConfigRepository interface {
	GetValue(ctx context.Context, name, key string) (string, error)
	SetValue(ctx context.Context, name, key, value string) error
}

// Store 聚合所有仓储，Transaction 内回调拿到的 Store 绑定同一个事务
type Store interface {
	Ledger() LedgerRepository
	Holdings() HoldingRepository
	Statements() StatementRepository
	Products() ProductRepository
	Credits() CreditRepository
	Outbox() OutboxRepository
	Users() UserRepository
	Configs() ConfigRepository

	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// ============================================================================
// GORM 实现
// ============================================================================

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Ledger() LedgerRepository { return NewLedgerRepository(s.db) }
func (s *GormStore) Holdings() HoldingRepository { return NewHoldingRepository(s.db) }
func (s *GormStore) Statements() StatementRepository { return NewStatementRepository(s.db) }
func (s *GormStore) Products() ProductRepository { return NewProductRepository(s.db) }
func (s *GormStore) Credits() CreditRepository { return NewCreditRepository(s.db) }
func (s *GormStore) Outbox() OutboxRepository { return NewOutboxRepository(s.db) }
func (s *GormStore) Users() UserRepository { return NewUserRepository(s.db) }
func (s *GormStore) Configs() ConfigRepository { return NewConfigRepository(s.db) }

// Transaction 回调返回错误时整体回滚
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return apperr.System(err, format, args...)
}

func conditional(result *gorm.DB, format string, args ...interface{}) error {
	if result.Error != nil {
		return apperr.System(result.Error, format, args...)
	}
	if result.RowsAffected == 0 {
		return apperr.InvalidState(format, args...)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
