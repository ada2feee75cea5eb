package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

var ledgerColumns = []string{"id", "flow_no", "user_id", "seq", "amount", "balance_after", "fund_type", "status", "effective"}

func TestLedgerGetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `ledger_entry` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(ledgerColumns))

	_, err := store.Ledger().GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerLatestActive(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .* FROM `ledger_entry` WHERE .*user_id = \\? AND effective = \\?.* ORDER BY seq DESC LIMIT .* FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow(10, "FLW1", 1, 3, "-20.00", "80.00", "EXPENSE", "SUCCESS", "ACTIVE"))

	tail, err := store.Ledger().LatestActive(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, tail)
	assert.Equal(t, int64(4), tail.NextSeq())
	assert.True(t, decimal.RequireFromString("80").Equal(tail.Balance()))

	mock.ExpectQuery("SELECT .* FROM `ledger_entry`").
		WillReturnRows(sqlmock.NewRows(ledgerColumns))

	tail, err = store.Ledger().LatestActive(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, tail)
	assert.Equal(t, int64(1), tail.NextSeq())
	assert.True(t, tail.Balance().IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerActivateConditional(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE `ledger_entry` SET .* WHERE id = \\? AND effective = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Ledger().Activate(ctx, 5, 2, decimal.NewFromInt(300)))

	mock.ExpectExec("UPDATE `ledger_entry` SET .* WHERE id = \\? AND effective = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Ledger().Activate(ctx, 5, 2, decimal.NewFromInt(300))
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	mock.ExpectExec("UPDATE `ledger_entry` SET .* WHERE id = \\? AND status = \\?").
		WillReturnError(errors.New("deadlock"))
	err = store.Ledger().UpdateStatus(ctx, 5, model.FlowStatusProcessing, model.FlowStatusSuccess)
	assert.ErrorIs(t, err, apperr.ErrSystem)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerFindByBusinessIDMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `ledger_entry` WHERE user_id = \\? AND fund_type = \\? AND business_id = \\?").
		WillReturnRows(sqlmock.NewRows(ledgerColumns))

	entry, err := store.Ledger().FindByBusinessID(context.Background(), 1, model.FundTypeIncome, "settle:9")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestHoldingDeductPrincipal(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE `financial_holding` SET `principal`=principal - \\?.* WHERE id = \\? AND principal >= \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `financial_holding` SET `status`=\\?.* WHERE id = \\? AND principal = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Holdings().DeductPrincipal(ctx, 1, decimal.NewFromInt(10)))

	mock.ExpectExec("UPDATE `financial_holding`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Holdings().DeductPrincipal(ctx, 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	mock.ExpectExec("UPDATE `financial_holding`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.Holdings().AddPrincipal(ctx, 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldingListAccruableLatestPerUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `financial_holding` WHERE id IN \\(SELECT MAX\\(id\\) FROM `financial_holding` GROUP BY .?user_id.?\\).*status = \\? AND principal > \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "principal", "status"}).
			AddRow(2, 1, "1000.00", "HOLDING"))

	holdings, err := store.Holdings().ListAccruable(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(2), holdings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductMarkCompletedOnlyOnce(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec("UPDATE `product_holding` SET .* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Products().MarkCompleted(ctx, 3, now))

	mock.ExpectExec("UPDATE `product_holding` SET .* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Products().MarkCompleted(ctx, 3, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRecordFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE `settlement_credit` SET .*`retry_count`=retry_count \\+ 1.* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Credits().RecordFailure(context.Background(), 4, "ledger unavailable", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `ledger_entry`").
		WillReturnError(errors.New("Duplicate entry '1-3' for key 'uk_ledger_user_seq'"))
	mock.ExpectRollback()

	seq := int64(3)
	err := store.Transaction(context.Background(), func(tx Store) error {
		return tx.Ledger().Create(context.Background(), &model.LedgerEntry{
			FlowNo:    "FLW1",
			UserID:    1,
			Seq:       &seq,
			Amount:    decimal.NewFromInt(10),
			FundType:  model.FundTypeIncome,
			Status:    model.FlowStatusSuccess,
			Effective: model.EffectiveActive,
		})
	})
	assert.ErrorIs(t, err, apperr.ErrSystem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	msg := &model.OutboxMessage{MessageKey: "MSG1", Topic: "t", EventType: "e", Payload: "{}", Status: model.OutboxStatusPending}
	err := store.Transaction(context.Background(), func(tx Store) error {
		return tx.Outbox().Create(context.Background(), msg)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigGetAndUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `sys_config` WHERE name = \\? AND config_key = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "config_key", "value"}).
			AddRow(1, model.ConfigNameSys, model.ConfigKeyFinancialRate, "36.5"))
	v, err := store.Configs().GetValue(ctx, model.ConfigNameSys, model.ConfigKeyFinancialRate)
	require.NoError(t, err)
	assert.Equal(t, "36.5", v)

	mock.ExpectQuery("SELECT \\* FROM `sys_config`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "config_key", "value"}))
	_, err = store.Configs().GetValue(ctx, model.ConfigNameSys, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	mock.ExpectExec("INSERT INTO `sys_config` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Configs().SetValue(ctx, model.ConfigNameSys, model.ConfigKeyFinancialRate, "2"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
