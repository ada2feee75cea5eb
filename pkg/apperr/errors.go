package apperr

import (
	"errors"
	"fmt"
)

// ============================================================================
// 业务错误分类
// ============================================================================
//
// 所有对外可见的错误都归入以下五类之一，调用方通过 errors.Is 判断类别：
//
//	ErrValidation             参数不合法（金额非正、用户缺失等）
//	ErrInsufficientFunds      扣款后余额为负
//	ErrNotFound               流水/产品/配置不存在
//	ErrInvalidStateTransition 重复审核、重复结算、提现不在处理中
//	ErrSystem                 存储或基础设施故障
//
// ============================================================================

var (
	ErrValidation             = errors.New("参数错误")
	ErrInsufficientFunds      = errors.New("账户余额不足")
	ErrNotFound               = errors.New("记录不存在")
	ErrInvalidStateTransition = errors.New("状态流转不合法")
	ErrSystem                 = errors.New("系统错误")
)

// Error 携带类别和具体描述的业务错误
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func InsufficientFunds(format string, args ...interface{}) error {
	return newError(ErrInsufficientFunds, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func InvalidState(format string, args ...interface{}) error {
	return newError(ErrInvalidStateTransition, format, args...)
}

// System 包装底层存储错误。已经分类过的错误原样返回，避免重复包装。
func System(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	e := newError(ErrSystem, format, args...)
	e.Err = err
	return e
}

// Classified 判断错误是否已经归入业务类别
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrSystem)
}

// KindOf 返回错误所属类别，未分类的错误视为系统错误
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidStateTransition):
		return ErrInvalidStateTransition
	default:
		return ErrSystem
	}
}
