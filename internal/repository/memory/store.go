// Package memory 提供 repository.Store 的内存实现，用于单元测试和本地调试。
//
// 所有事务串行执行；事务回调返回错误或 panic 时整体回滚到事务开始时的快照。
// 唯一约束与 MySQL 表结构保持一致。
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
)

// ErrDuplicateKey 违反唯一约束
var ErrDuplicateKey = errors.New("Duplicate entry")

type state struct {
	nextID     int64
	ledger     map[int64]model.LedgerEntry
	holdings   map[int64]model.FinancialHolding
	statements map[int64]model.FinancialStatement
	products   map[int64]model.ProductHolding
	credits    map[int64]model.SettlementCredit
	outbox     map[int64]model.OutboxMessage
	users      map[int64]model.User
	configs    map[string]string
}

func newState() *state {
	return &state{
		ledger:     make(map[int64]model.LedgerEntry),
		holdings:   make(map[int64]model.FinancialHolding),
		statements: make(map[int64]model.FinancialStatement),
		products:   make(map[int64]model.ProductHolding),
		credits:    make(map[int64]model.SettlementCredit),
		outbox:     make(map[int64]model.OutboxMessage),
		users:      make(map[int64]model.User),
		configs:    make(map[string]string),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *state) clone() *state {
	return &state{
		nextID:     st.nextID,
		ledger:     cloneMap(st.ledger),
		holdings:   cloneMap(st.holdings),
		statements: cloneMap(st.statements),
		products:   cloneMap(st.products),
		credits:    cloneMap(st.credits),
		outbox:     cloneMap(st.outbox),
		users:      cloneMap(st.users),
		configs:    cloneMap(st.configs),
	}
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// faults 测试用的故障注入，不参与事务回滚
type faults struct {
	mu  sync.Mutex
	err map[string]error
}

func (f *faults) get(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err[op]
}

type Store struct {
	mu     *sync.Mutex
	st     *state
	faults *faults
	inTx   bool
	now    func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu:     &sync.Mutex{},
		st:     newState(),
		faults: &faults{err: make(map[string]error)},
		now:    time.Now,
	}
}

// SetFault 让名为 op 的操作（如 "holdings.AddPrincipal"）一直返回 err，直到 ClearFault
func (s *Store) SetFault(op string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.err[op] = err
}

func (s *Store) ClearFault(op string) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	delete(s.faults.err, op)
}

// PutUser 写入或覆盖用户
func (s *Store) PutUser(user model.User) {
	_ = s.do("", func(st *state) error {
		st.users[user.ID] = user
		return nil
	})
}

func (s *Store) do(op string, fn func(st *state) error) error {
	if op != "" {
		if err := s.faults.get(op); err != nil {
			return apperr.System(err, "%s 失败", op)
		}
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

func (s *Store) Ledger() repository.LedgerRepository { return ledgerRepo{s} }
func (s *Store) Holdings() repository.HoldingRepository { return holdingRepo{s} }
func (s *Store) Statements() repository.StatementRepository { return statementRepo{s} }
func (s *Store) Products() repository.ProductRepository { return productRepo{s} }
func (s *Store) Credits() repository.CreditRepository { return creditRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{s} }
func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Configs() repository.ConfigRepository { return configRepo{s} }

// Transaction 串行执行，失败时恢复快照；嵌套调用等价于保存点
func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return apperr.System(err, "开启事务失败")
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, faults: s.faults, inTx: true, now: s.now}

	defer func() {
		if r := recover(); r != nil {
			*s.st = *snapshot
			panic(r)
		}
		if err != nil {
			*s.st = *snapshot
		}
	}()

	return fn(tx)
}

func duplicate(format string, args ...interface{}) error {
	return apperr.System(ErrDuplicateKey, format, args...)
}

// ============================================================================
// 资金流水
// ============================================================================

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Create(_ context.Context, entry *model.LedgerEntry) error {
	return r.s.do("ledger.Create", func(st *state) error {
		for _, e := range st.ledger {
			if e.FlowNo == entry.FlowNo {
				return duplicate("流水号 %s 重复", entry.FlowNo)
			}
			if entry.Seq != nil && e.Seq != nil && e.UserID == entry.UserID && *e.Seq == *entry.Seq {
				return duplicate("用户 %d 流水序号 %d 重复", entry.UserID, *entry.Seq)
			}
		}
		entry.ID = st.id()
		now := r.s.now()
		entry.CreatedAt, entry.UpdatedAt = now, now
		st.ledger[entry.ID] = *entry
		return nil
	})
}

func (r ledgerRepo) GetByID(_ context.Context, id int64) (*model.LedgerEntry, error) {
	var out *model.LedgerEntry
	err := r.s.do("", func(st *state) error {
		e, ok := st.ledger[id]
		if !ok {
			return apperr.NotFound("资金流水 %d 不存在", id)
		}
		out = &e
		return nil
	})
	return out, err
}

func (r ledgerRepo) LatestActive(_ context.Context, userID int64) (*model.LedgerEntry, error) {
	var out *model.LedgerEntry
	err := r.s.do("ledger.LatestActive", func(st *state) error {
		for _, e := range st.ledger {
			if e.UserID != userID || e.Effective != model.EffectiveActive || e.Seq == nil {
				continue
			}
			if out == nil || *e.Seq > *out.Seq {
				e := e
				out = &e
			}
		}
		return nil
	})
	return out, err
}

func (r ledgerRepo) FindByBusinessID(_ context.Context, userID int64, fundType model.FundType, businessID string) (*model.LedgerEntry, error) {
	var out *model.LedgerEntry
	err := r.s.do("", func(st *state) error {
		for _, e := range st.ledger {
			if e.UserID == userID && e.FundType == fundType && e.BusinessID == businessID {
				e := e
				out = &e
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r ledgerRepo) Activate(_ context.Context, id int64, seq int64, balanceAfter decimal.Decimal) error {
	return r.s.do("ledger.Activate", func(st *state) error {
		e, ok := st.ledger[id]
		if !ok || e.Effective != model.EffectivePending {
			return apperr.InvalidState("流水 %d 不是待审核状态", id)
		}
		for _, other := range st.ledger {
			if other.UserID == e.UserID && other.Seq != nil && *other.Seq == seq {
				return duplicate("用户 %d 流水序号 %d 重复", e.UserID, seq)
			}
		}
		e.Effective = model.EffectiveActive
		e.Status = model.FlowStatusSuccess
		e.Seq = &seq
		e.BalanceAfter = decimal.NewNullDecimal(balanceAfter)
		e.UpdatedAt = r.s.now()
		st.ledger[id] = e
		return nil
	})
}

func (r ledgerRepo) Refuse(_ context.Context, id int64) error {
	return r.s.do("ledger.Refuse", func(st *state) error {
		e, ok := st.ledger[id]
		if !ok || e.Effective != model.EffectivePending {
			return apperr.InvalidState("流水 %d 不是待审核状态", id)
		}
		e.Effective = model.EffectiveRefused
		e.Status = model.FlowStatusFailed
		e.UpdatedAt = r.s.now()
		st.ledger[id] = e
		return nil
	})
}

func (r ledgerRepo) UpdateStatus(_ context.Context, id int64, from, to model.FlowStatus) error {
	return r.s.do("ledger.UpdateStatus", func(st *state) error {
		e, ok := st.ledger[id]
		if !ok || e.Status != from {
			return apperr.InvalidState("流水 %d 不是 %s 状态", id, from)
		}
		e.Status = to
		e.UpdatedAt = r.s.now()
		st.ledger[id] = e
		return nil
	})
}

func (r ledgerRepo) Find(_ context.Context, filter model.LedgerFilter) ([]*model.LedgerEntry, error) {
	var out []*model.LedgerEntry
	err := r.s.do("", func(st *state) error {
		for _, e := range st.ledger {
			if filter.UserID > 0 && e.UserID != filter.UserID {
				continue
			}
			if filter.FundType != "" && e.FundType != filter.FundType {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.Effective != "" && e.Effective != filter.Effective {
				continue
			}
			e := e
			out = append(out, &e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (r ledgerRepo) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	all, err := r.Find(ctx, model.LedgerFilter{UserID: userID})
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*model.LedgerEntry{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// ============================================================================
// 理财持仓与理财流水
// ============================================================================

type holdingRepo struct{ s *Store }

func (r holdingRepo) Create(_ context.Context, holding *model.FinancialHolding) error {
	return r.s.do("holdings.Create", func(st *state) error {
		holding.ID = st.id()
		now := r.s.now()
		holding.CreatedAt, holding.UpdatedAt = now, now
		st.holdings[holding.ID] = *holding
		return nil
	})
}

func (r holdingRepo) GetByID(_ context.Context, id int64) (*model.FinancialHolding, error) {
	var out *model.FinancialHolding
	err := r.s.do("", func(st *state) error {
		h, ok := st.holdings[id]
		if !ok {
			return apperr.NotFound("理财持仓 %d 不存在", id)
		}
		out = &h
		return nil
	})
	return out, err
}

func (r holdingRepo) LatestByUserID(_ context.Context, userID int64) (*model.FinancialHolding, error) {
	var out *model.FinancialHolding
	err := r.s.do("", func(st *state) error {
		for _, h := range st.holdings {
			if h.UserID == userID && (out == nil || h.ID > out.ID) {
				h := h
				out = &h
			}
		}
		return nil
	})
	return out, err
}

func (r holdingRepo) AddPrincipal(_ context.Context, id int64, delta decimal.Decimal) error {
	return r.s.do("holdings.AddPrincipal", func(st *state) error {
		h, ok := st.holdings[id]
		if !ok {
			return apperr.NotFound("理财持仓 %d 不存在", id)
		}
		h.Principal = h.Principal.Add(delta)
		h.Status = model.HoldingStatusHolding
		h.UpdatedAt = r.s.now()
		st.holdings[id] = h
		return nil
	})
}

func (r holdingRepo) DeductPrincipal(_ context.Context, id int64, amount decimal.Decimal) error {
	return r.s.do("holdings.DeductPrincipal", func(st *state) error {
		h, ok := st.holdings[id]
		if !ok || h.Principal.LessThan(amount) {
			return apperr.InsufficientFunds("理财账户余额不足，转出失败")
		}
		h.Principal = h.Principal.Sub(amount)
		if h.Principal.IsZero() {
			h.Status = model.HoldingStatusRedeemed
		}
		h.UpdatedAt = r.s.now()
		st.holdings[id] = h
		return nil
	})
}

func (r holdingRepo) ListAccruable(_ context.Context) ([]*model.FinancialHolding, error) {
	var out []*model.FinancialHolding
	err := r.s.do("", func(st *state) error {
		latest := make(map[int64]model.FinancialHolding)
		for _, h := range st.holdings {
			if cur, ok := latest[h.UserID]; !ok || h.ID > cur.ID {
				latest[h.UserID] = h
			}
		}
		for _, h := range latest {
			if h.Status == model.HoldingStatusHolding && h.Principal.IsPositive() {
				h := h
				out = append(out, &h)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

type statementRepo struct{ s *Store }

func (r statementRepo) Create(_ context.Context, stmt *model.FinancialStatement) error {
	return r.s.do("statements.Create", func(st *state) error {
		stmt.ID = st.id()
		stmt.CreatedAt = r.s.now()
		st.statements[stmt.ID] = *stmt
		return nil
	})
}

func (r statementRepo) Exists(_ context.Context, holdingID int64, typ model.StatementType, bizDate string) (bool, error) {
	found := false
	err := r.s.do("", func(st *state) error {
		for _, stmt := range st.statements {
			if stmt.HoldingID == holdingID && stmt.Type == typ && stmt.BizDate == bizDate {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r statementRepo) ListByUserID(_ context.Context, userID int64, limit int) ([]*model.FinancialStatement, error) {
	var out []*model.FinancialStatement
	err := r.s.do("", func(st *state) error {
		for _, stmt := range st.statements {
			if stmt.UserID == userID {
				stmt := stmt
				out = append(out, &stmt)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// ============================================================================
// 持有产品与结算回款
// ============================================================================

type productRepo struct{ s *Store }

func (r productRepo) Create(_ context.Context, product *model.ProductHolding) error {
	return r.s.do("products.Create", func(st *state) error {
		for _, p := range st.products {
			if p.ProductNo == product.ProductNo {
				return duplicate("产品编号 %s 重复", product.ProductNo)
			}
		}
		product.ID = st.id()
		now := r.s.now()
		product.CreatedAt, product.UpdatedAt = now, now
		st.products[product.ID] = *product
		return nil
	})
}

func (r productRepo) GetByID(_ context.Context, id int64) (*model.ProductHolding, error) {
	var out *model.ProductHolding
	err := r.s.do("products.GetByID", func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperr.NotFound("产品 %d 不存在", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r productRepo) list(match func(p model.ProductHolding) bool) ([]*model.ProductHolding, error) {
	var out []*model.ProductHolding
	err := r.s.do("", func(st *state) error {
		for _, p := range st.products {
			if match(p) {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	return out, err
}

func (r productRepo) ListByStatus(_ context.Context, status model.ProductStatus) ([]*model.ProductHolding, error) {
	out, err := r.list(func(p model.ProductHolding) bool { return p.Status == status })
	sortByMaturity(out)
	return out, err
}

func (r productRepo) ListDue(_ context.Context, before time.Time, limit int) ([]*model.ProductHolding, error) {
	out, err := r.list(func(p model.ProductHolding) bool {
		return p.Status == model.ProductStatusActive && !p.MaturityTime.After(before)
	})
	sortByMaturity(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r productRepo) ListByUserID(_ context.Context, userID int64) ([]*model.ProductHolding, error) {
	out, err := r.list(func(p model.ProductHolding) bool { return p.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func sortByMaturity(products []*model.ProductHolding) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].MaturityTime.Equal(products[j].MaturityTime) {
			return products[i].ID < products[j].ID
		}
		return products[i].MaturityTime.Before(products[j].MaturityTime)
	})
}

func (r productRepo) MarkCompleted(_ context.Context, id int64, settledAt time.Time) error {
	return r.s.do("products.MarkCompleted", func(st *state) error {
		p, ok := st.products[id]
		if !ok || p.Status != model.ProductStatusActive {
			return apperr.InvalidState("产品 %d 不是持有中状态", id)
		}
		p.Status = model.ProductStatusCompleted
		p.SettledAt = &settledAt
		p.UpdatedAt = r.s.now()
		st.products[id] = p
		return nil
	})
}

type creditRepo struct{ s *Store }

func (r creditRepo) Create(_ context.Context, credit *model.SettlementCredit) error {
	return r.s.do("credits.Create", func(st *state) error {
		for _, c := range st.credits {
			if c.ProductID == credit.ProductID {
				return duplicate("产品 %d 的结算回款已存在", credit.ProductID)
			}
		}
		credit.ID = st.id()
		now := r.s.now()
		credit.CreatedAt, credit.UpdatedAt = now, now
		st.credits[credit.ID] = *credit
		return nil
	})
}

func (r creditRepo) GetByID(_ context.Context, id int64) (*model.SettlementCredit, error) {
	var out *model.SettlementCredit
	err := r.s.do("", func(st *state) error {
		c, ok := st.credits[id]
		if !ok {
			return apperr.NotFound("结算回款 %d 不存在", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r creditRepo) ListPending(_ context.Context, limit int) ([]*model.SettlementCredit, error) {
	var out []*model.SettlementCredit
	err := r.s.do("", func(st *state) error {
		for _, c := range st.credits {
			if c.Status == model.CreditStatusPending {
				c := c
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r creditRepo) MarkDone(_ context.Context, id int64) error {
	return r.s.do("credits.MarkDone", func(st *state) error {
		c, ok := st.credits[id]
		if !ok || c.Status != model.CreditStatusPending {
			return apperr.InvalidState("结算回款 %d 不是待入账状态", id)
		}
		c.Status = model.CreditStatusDone
		c.UpdatedAt = r.s.now()
		st.credits[id] = c
		return nil
	})
}

func (r creditRepo) RecordFailure(_ context.Context, id int64, reason string, giveUp bool) error {
	return r.s.do("", func(st *state) error {
		c, ok := st.credits[id]
		if !ok || c.Status != model.CreditStatusPending {
			return nil
		}
		c.RetryCount++
		c.LastError = reason
		if giveUp {
			c.Status = model.CreditStatusFailed
		}
		c.UpdatedAt = r.s.now()
		st.credits[id] = c
		return nil
	})
}

// ============================================================================
// 本地消息
// ============================================================================

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(_ context.Context, msg *model.OutboxMessage) error {
	return r.s.do("outbox.Create", func(st *state) error {
		msg.ID = st.id()
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		now := r.s.now()
		msg.CreatedAt, msg.UpdatedAt = now, now
		st.outbox[msg.ID] = *msg
		return nil
	})
}

func (r outboxRepo) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	err := r.s.do("", func(st *state) error {
		for _, m := range st.outbox {
			if m.Status == model.OutboxStatusPending {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r outboxRepo) update(id int64, fn func(m *model.OutboxMessage)) error {
	return r.s.do("", func(st *state) error {
		m, ok := st.outbox[id]
		if !ok {
			return apperr.NotFound("消息 %d 不存在", id)
		}
		fn(&m)
		m.UpdatedAt = r.s.now()
		st.outbox[id] = m
		return nil
	})
}

func (r outboxRepo) MarkSent(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusSent })
}

func (r outboxRepo) IncrementRetryCount(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) { m.RetryCount++ })
}

func (r outboxRepo) MarkAsFailed(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
}

// ============================================================================
// 用户与系统配置
// ============================================================================

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.s.do("", func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperr.NotFound("用户 %d 不存在", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (r userRepo) Save(_ context.Context, user *model.User) error {
	return r.s.do("", func(st *state) error {
		now := r.s.now()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		st.users[user.ID] = *user
		return nil
	})
}

type configRepo struct{ s *Store }

func configKey(name, key string) string {
	return fmt.Sprintf("%s\x00%s", name, key)
}

func (r configRepo) GetValue(_ context.Context, name, key string) (string, error) {
	var out string
	err := r.s.do("configs.GetValue", func(st *state) error {
		v, ok := st.configs[configKey(name, key)]
		if !ok {
			return apperr.NotFound("配置项 %s.%s 不存在", name, key)
		}
		out = v
		return nil
	})
	return out, err
}

func (r configRepo) SetValue(_ context.Context, name, key, value string) error {
	return r.s.do("", func(st *state) error {
		st.configs[configKey(name, key)] = value
		return nil
	})
}
