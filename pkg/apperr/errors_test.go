package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"validation", Validation("金额必须大于0"), ErrValidation},
		{"insufficient", InsufficientFunds("余额不足"), ErrInsufficientFunds},
		{"not found", NotFound("流水 %d 不存在", 7), ErrNotFound},
		{"invalid state", InvalidState("已审核"), ErrInvalidStateTransition},
		{"wrapped", fmt.Errorf("充值失败: %w", NotFound("x")), ErrNotFound},
		{"unclassified", errors.New("connection refused"), ErrSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSystem(t *testing.T) {
	t.Run("wraps raw error", func(t *testing.T) {
		cause := errors.New("deadlock found")
		err := System(cause, "写入流水失败")

		assert.ErrorIs(t, err, ErrSystem)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "写入流水失败: deadlock found", err.Error())
	})

	t.Run("keeps classified error", func(t *testing.T) {
		orig := InsufficientFunds("余额不足")
		err := System(orig, "扣款失败")

		assert.Same(t, orig, err)
		assert.NotErrorIs(t, err, ErrSystem)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, System(nil, "noop"))
	})
}

func TestErrorMessage(t *testing.T) {
	err := Validation("金额 %s 不合法", "-1")
	assert.Equal(t, "金额 -1 不合法", err.Error())
}
