package response

import (
	"errors"
	"net/http"

	"wealthledger/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeStatusInvalid    = 1002
	CodeBalanceNotEnough = 1003
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// FromError 按错误类别返回对应的业务码，系统错误不向调用方暴露细节
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	switch {
	case errors.Is(kind, apperr.ErrValidation):
		ParamError(c, err.Error())
	case errors.Is(kind, apperr.ErrNotFound):
		Error(c, CodeNotFound, err.Error())
	case errors.Is(kind, apperr.ErrInsufficientFunds):
		BusinessError(c, CodeBalanceNotEnough, err.Error())
	case errors.Is(kind, apperr.ErrInvalidStateTransition):
		BusinessError(c, CodeStatusInvalid, err.Error())
	default:
		_ = c.Error(err)
		ServerError(c, "系统繁忙，请稍后重试")
	}
}
