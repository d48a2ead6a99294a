// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/interfaces/http/dto"
	"novelforge-api/internal/interfaces/http/middleware"
	apperrors "novelforge-api/pkg/errors"
)

// Scope 租户作用域执行接口，由持久层的 ScopeManager 实现。
// Read 在只读租户事务中执行，Write 额外持有租户写锁。
type Scope interface {
	Read(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
	Write(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

// requireTenant 从请求上下文解析租户 ID，缺失时直接写入 401 响应
func requireTenant(c *gin.Context) (string, bool) {
	tenantID := middleware.GetTenantIDFromGin(c)
	if tenantID == "" {
		dto.Fail(c, apperrors.ErrTenantMissing)
		return "", false
	}
	return tenantID, true
}

// requireParam 校验路径参数非空，为空时写入 400 响应
func requireParam(c *gin.Context, value, name string) bool {
	if value == "" {
		dto.Fail(c, apperrors.ErrInvalidParam.WithDetail(name+" is required"))
		return false
	}
	return true
}

// bindJSON 绑定请求体，失败时写入 400 响应
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.Fail(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return false
	}
	return true
}
