// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
)

// ScopeManager 租户作用域执行器。
// 每次调用确保租户存储就绪，开启一个短事务并在事务内设置 RLS 租户上下文；
// 写作用域额外持有租户写锁。流式请求不持有长事务，编排器按阶段多次进入作用域。
type ScopeManager struct {
	registry *Registry
	tx       *TxManager
	tenants  *TenantContext
}

// NewScopeManager 创建租户作用域执行器
func NewScopeManager(registry *Registry, tx *TxManager, tenants *TenantContext) *ScopeManager {
	return &ScopeManager{
		registry: registry,
		tx:       tx,
		tenants:  tenants,
	}
}

// Read 在租户作用域的短事务内执行只读操作
func (m *ScopeManager) Read(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if _, err := m.registry.Acquire(ctx, tenantID); err != nil {
		return err
	}
	return m.runInTenantTx(ctx, tenantID, fn)
}

// Write 持有租户写锁，在租户作用域的短事务内执行写操作。
// 同一上下文内嵌套进入写作用域不会死锁（写锁可重入，事务复用外层）。
func (m *ScopeManager) Write(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if _, err := m.registry.Acquire(ctx, tenantID); err != nil {
		return err
	}
	return m.registry.WithWriteLock(ctx, tenantID, func(lockCtx context.Context) error {
		return m.runInTenantTx(lockCtx, tenantID, fn)
	})
}

func (m *ScopeManager) runInTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	return m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		// set_config(..., is_local=TRUE) 仅在当前事务内有效
		if err := m.tenants.SetTenant(txCtx, tenantID); err != nil {
			return err
		}
		return fn(txCtx)
	})
}
