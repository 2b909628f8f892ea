package errno

import "fmt"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个带有详细信息的错误副本 (Code 不变)
// 例如: errno.ErrValidation.WithMessage("value is not an integer: %q", raw)
func (e Errno) WithMessage(format string, args ...interface{}) Errno {
	return Errno{
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is 支持 errors.Is 按 Code 匹配 (忽略 Message 差异)
func (e Errno) Is(target error) bool {
	switch typed := target.(type) {
	case *Errno:
		return typed.Code == e.Code
	case Errno:
		return typed.Code == e.Code
	default:
		return false
	}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrValidation     = Errno{Code: 20301, Message: "Malformed transaction input"}
	ErrRecordNotFound = Errno{Code: 20302, Message: "Transaction record not found"}
	ErrInvalidState   = Errno{Code: 20303, Message: "Operation not allowed in current record state"}
	ErrBusy           = Errno{Code: 20304, Message: "Another transaction is being signed"}
	ErrAuth           = Errno{Code: 20305, Message: "Authorization declined or unavailable"}
	ErrRpc            = Errno{Code: 20306, Message: "Node RPC request failed"}
	ErrEstimation     = Errno{Code: 20307, Message: "Gas estimation failed"}
	ErrCompile        = Errno{Code: 20308, Message: "Solidity compilation failed"}
)
