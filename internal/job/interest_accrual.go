package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"wealthledger/internal/infrastructure/lock"
	"wealthledger/internal/infrastructure/metrics"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccrualReport 一次计提的结果
type AccrualReport struct {
	BizDate    string          `json:"biz_date"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
	DailyRate  decimal.Decimal `json:"daily_rate"`
	Holdings   int             `json:"holdings"`
	Accrued    int             `json:"accrued"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Total      decimal.Decimal `json:"total"`
}

// InterestAccrualJob 每日理财收益计提
//
// 年化收益率（百分数）从 sys_config 读取，缺失时用配置里的默认值。
// 每个持仓单独加锁、单独事务，一个用户失败不影响其他用户；
// 同一持仓同一业务日期只计提一次，任务可以安全重跑。
type InterestAccrualJob struct {
	store       repository.Store
	locker      lock.Locker
	defaultRate decimal.Decimal
	cronExpr    string
	log         *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewInterestAccrualJob(store repository.Store, locker lock.Locker, defaultRate decimal.Decimal, cronExpr string, log *zap.Logger) *InterestAccrualJob {
	return &InterestAccrualJob{
		store:       store,
		locker:      locker,
		defaultRate: defaultRate,
		cronExpr:    cronExpr,
		log:         log.Named("InterestAccrualJob"),
		now:         time.Now,
	}
}

// Start 按 cron 表达式（带秒）注册每日任务
func (j *InterestAccrualJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(j.cronExpr, func() {
		if _, err := j.Run(context.Background()); err != nil {
			j.log.Error("收益计提失败", zap.Error(err))
		}
	}); err != nil {
		return apperr.Validation("收益计提 cron 表达式不合法 %q: %v", j.cronExpr, err)
	}
	c.Start()
	j.cron = c
	j.log.Info("收益计提任务启动", zap.String("cron", j.cronExpr))
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (j *InterestAccrualJob) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		j.log.Info("收益计提任务停止")
	}
}

// Run 执行一次计提
func (j *InterestAccrualJob) Run(ctx context.Context) (*AccrualReport, error) {
	start := j.now()
	report := &AccrualReport{
		BizDate: start.Format(model.BizDateLayout),
		Total:   decimal.Zero,
	}

	annual, err := j.annualRate(ctx)
	if err != nil {
		return report, err
	}
	report.AnnualRate = annual
	report.DailyRate = model.DailyRate(annual)
	if !report.DailyRate.IsPositive() {
		j.log.Warn("日收益率不大于0，任务终止",
			zap.String("annual_rate", annual.String()),
			zap.String("daily_rate", report.DailyRate.String()))
		return report, apperr.Validation("日收益率 %s 不大于0", report.DailyRate)
	}

	holdings, err := j.store.Holdings().ListAccruable(ctx)
	if err != nil {
		return report, err
	}
	report.Holdings = len(holdings)

	for _, h := range holdings {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		earnings, err := j.accrue(ctx, h, report.DailyRate, report.BizDate)
		switch {
		case err != nil:
			report.Failed++
			j.log.Error("持仓收益计提失败",
				zap.Int64("holding_id", h.ID),
				zap.Int64("user_id", h.UserID),
				zap.Error(err))
		case earnings.IsPositive():
			report.Accrued++
			report.Total = report.Total.Add(earnings)
		default:
			report.Skipped++
		}
	}

	metrics.RecordAccrual(report.Accrued, report.Skipped, report.Failed, j.now().Sub(start))
	j.log.Info("收益计提完成",
		zap.String("biz_date", report.BizDate),
		zap.String("daily_rate", report.DailyRate.String()),
		zap.Int("holdings", report.Holdings),
		zap.Int("accrued", report.Accrued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("total", report.Total.String()))
	return report, nil
}

func (j *InterestAccrualJob) annualRate(ctx context.Context) (decimal.Decimal, error) {
	value, err := j.store.Configs().GetValue(ctx, model.ConfigNameSys, model.ConfigKeyFinancialRate)
	if errors.Is(err, apperr.ErrNotFound) {
		return j.defaultRate, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperr.Validation("年化收益率配置不合法 %q", value)
	}
	return rate, nil
}

// accrue 计提单个持仓，返回本次收益；已计提或收益为 0 时返回 0
func (j *InterestAccrualJob) accrue(ctx context.Context, h *model.FinancialHolding, dailyRate decimal.Decimal, bizDate string) (decimal.Decimal, error) {
	unlock, err := j.locker.Lock(ctx, lock.UserKey(h.UserID))
	if err != nil {
		return decimal.Zero, apperr.System(err, "获取用户锁失败")
	}
	defer unlock()

	earnings := decimal.Zero
	err = j.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Holdings().GetByID(ctx, h.ID)
		if err != nil {
			return err
		}
		if current.Status != model.HoldingStatusHolding || !current.Principal.IsPositive() {
			return nil
		}
		done, err := tx.Statements().Exists(ctx, current.ID, model.StatementTypeIncome, bizDate)
		if err != nil || done {
			return err
		}

		amount := model.DailyEarnings(current.Principal, dailyRate)
		if !amount.IsPositive() {
			return nil
		}
		if err := tx.Holdings().AddPrincipal(ctx, current.ID, amount); err != nil {
			return err
		}
		if err := tx.Statements().Create(ctx, &model.FinancialStatement{
			UserID:    current.UserID,
			HoldingID: current.ID,
			Type:      model.StatementTypeIncome,
			Amount:    amount,
			BizDate:   bizDate,
		}); err != nil {
			return err
		}
		earnings = amount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return earnings, nil
}
