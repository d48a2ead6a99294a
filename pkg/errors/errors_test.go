package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	e := New(CodeInvalidParam, "invalid parameter")
	assert.Equal(t, "[1001] invalid parameter", e.Error())

	wrapped := Wrap(errors.New("boom"), CodeDatabaseError, "query failed")
	assert.Equal(t, "[5001] query failed: boom", wrapped.Error())
}

func TestAppErrorCloneSemantics(t *testing.T) {
	base := ErrProjectNotFound

	withDetail := base.WithDetail("pid=abc")
	assert.Equal(t, "pid=abc", withDetail.Detail)
	assert.Empty(t, base.Detail, "WithDetail 不应污染预定义错误")

	withMsg := base.WithMessage("换一个说法")
	assert.Equal(t, "换一个说法", withMsg.Message)
	assert.Equal(t, base.Code, withMsg.Code)
	assert.Equal(t, "项目不存在", base.Message)

	inner := errors.New("inner")
	withErr := base.WithError(inner)
	assert.ErrorIs(t, withErr, inner)
	assert.Nil(t, base.Err)
}

func TestWrapUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	e := Wrap(inner, CodeDatabaseError, "db down")

	require.ErrorIs(t, e, inner)
	assert.Equal(t, inner, e.Unwrap())
}

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeSuccess, http.StatusOK},
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeValidationFailed, http.StatusBadRequest},
		{CodePrerequisiteMissing, http.StatusBadRequest},
		{CodePluginDisabled, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeTenantMissing, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeProjectNotFound, http.StatusNotFound},
		{CodeTaskNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeLLMTimeout, http.StatusGatewayTimeout},
		{CodeToolUnavailable, http.StatusServiceUnavailable},
		{CodeStoreUnavailable, http.StatusServiceUnavailable},
		{CodeLLMCallFailed, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus)
		})
	}
}

func TestAsAppError(t *testing.T) {
	appErr := ErrChapterNotFound
	assert.Same(t, appErr, AsAppError(appErr))

	plain := errors.New("plain")
	converted := AsAppError(plain)
	assert.Equal(t, CodeUnknown, converted.Code)
	assert.ErrorIs(t, converted, plain)
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(ErrConflict))
	assert.False(t, IsAppError(errors.New("nope")))
}

func TestIsCode(t *testing.T) {
	inner := ErrCancelled
	outer := fmt.Errorf("outer: %w", inner)

	assert.True(t, IsCode(inner, CodeCancelled))
	assert.True(t, IsCode(outer, CodeCancelled))
	assert.False(t, IsCode(outer, CodeConflict))
	assert.False(t, IsCode(nil, CodeCancelled))
	assert.False(t, IsCode(errors.New("plain"), CodeCancelled))
}
