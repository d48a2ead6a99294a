// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeCancelled          ErrorCode = "1009"

	// 认证授权错误 (2xxx)
	CodeTokenExpired     ErrorCode = "2001"
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodePermissionDenied ErrorCode = "2004"
	CodeTenantMissing    ErrorCode = "2005"

	// 资源错误 (3xxx)
	CodeProjectNotFound  ErrorCode = "3001"
	CodeChapterNotFound  ErrorCode = "3002"
	CodeOutlineNotFound  ErrorCode = "3003"
	CodeCharacterNotFound ErrorCode = "3004"
	CodeStyleNotFound    ErrorCode = "3005"
	CodePluginNotFound   ErrorCode = "3006"
	CodeTaskNotFound     ErrorCode = "3007"
	CodeMemoryNotFound   ErrorCode = "3008"

	// 业务错误 (4xxx)
	CodeGenerationFailed    ErrorCode = "4001"
	CodeValidationFailed    ErrorCode = "4002"
	CodePrerequisiteMissing ErrorCode = "4003"
	CodeLLMCallFailed       ErrorCode = "4004"
	CodeLLMTimeout          ErrorCode = "4005"
	CodeLLMInvalidResponse  ErrorCode = "4006"
	CodeToolUnavailable     ErrorCode = "4007"
	CodeAnalysisParseFailed ErrorCode = "4008"
	CodeMemoryWriteFailed   ErrorCode = "4009"
	CodeEmbeddingFailed     ErrorCode = "4010"
	CodePluginDisabled      ErrorCode = "4011"

	// 外部服务错误 (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeVectorDBError    ErrorCode = "5003"
	CodeStoreUnavailable ErrorCode = "5004"
	CodeQueueError       ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithMessage 替换展示消息，保留错误码
func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeValidationFailed, CodePrerequisiteMissing, CodePluginDisabled:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeTokenMissing, CodeTenantMissing:
		return http.StatusUnauthorized
	case CodeForbidden, CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeProjectNotFound, CodeChapterNotFound, CodeOutlineNotFound,
		CodeCharacterNotFound, CodeStyleNotFound, CodePluginNotFound, CodeTaskNotFound,
		CodeMemoryNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeLLMTimeout:
		return http.StatusGatewayTimeout
	case CodeServiceUnavailable, CodeStoreUnavailable, CodeToolUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")
	ErrCancelled          = New(CodeCancelled, "request cancelled")

	ErrTokenExpired  = New(CodeTokenExpired, "token expired")
	ErrTokenInvalid  = New(CodeTokenInvalid, "token invalid")
	ErrTokenMissing  = New(CodeTokenMissing, "token missing")
	ErrTenantMissing = New(CodeTenantMissing, "tenant not resolved")

	ErrProjectNotFound   = New(CodeProjectNotFound, "项目不存在")
	ErrChapterNotFound   = New(CodeChapterNotFound, "章节不存在")
	ErrOutlineNotFound   = New(CodeOutlineNotFound, "大纲不存在")
	ErrCharacterNotFound = New(CodeCharacterNotFound, "角色不存在")
	ErrStyleNotFound     = New(CodeStyleNotFound, "写作风格不存在")
	ErrPluginNotFound    = New(CodePluginNotFound, "插件不存在")
	ErrTaskNotFound      = New(CodeTaskNotFound, "分析任务不存在")

	ErrGenerationFailed    = New(CodeGenerationFailed, "生成失败")
	ErrValidationFailed    = New(CodeValidationFailed, "validation failed")
	ErrPrerequisiteMissing = New(CodePrerequisiteMissing, "前置章节未完成")
	ErrLLMCallFailed       = New(CodeLLMCallFailed, "LLM call failed")
	ErrLLMTimeout          = New(CodeLLMTimeout, "LLM call timed out")
	ErrLLMInvalidResponse  = New(CodeLLMInvalidResponse, "LLM returned invalid response")
	ErrToolUnavailable     = New(CodeToolUnavailable, "tool unavailable")
	ErrAnalysisParseFailed = New(CodeAnalysisParseFailed, "分析结果解析失败")
	ErrPluginDisabled      = New(CodePluginDisabled, "插件未启用")

	ErrDatabaseError    = New(CodeDatabaseError, "database error")
	ErrStoreUnavailable = New(CodeStoreUnavailable, "tenant store unavailable")
	ErrQueueError       = New(CodeQueueError, "task queue error")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsCode 判断错误链上是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
