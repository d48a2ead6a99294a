// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// ToolPluginRepository 工具插件仓储接口
type ToolPluginRepository interface {
	// Create 创建插件
	Create(ctx context.Context, plugin *entity.ToolPlugin) error

	// GetByID 根据 ID 获取插件
	GetByID(ctx context.Context, id string) (*entity.ToolPlugin, error)

	// GetByName 根据租户和插件名获取插件
	GetByName(ctx context.Context, pluginName string) (*entity.ToolPlugin, error)

	// Update 更新插件
	Update(ctx context.Context, plugin *entity.ToolPlugin) error

	// Delete 删除插件
	Delete(ctx context.Context, id string) error

	// ListByTenant 获取租户全部插件
	ListByTenant(ctx context.Context) ([]*entity.ToolPlugin, error)

	// ListEnabled 获取租户已启用插件
	ListEnabled(ctx context.Context) ([]*entity.ToolPlugin, error)
}
