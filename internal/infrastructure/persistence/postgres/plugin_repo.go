// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
)

// ToolPluginRepository 工具插件仓储实现
type ToolPluginRepository struct {
	client *Client
}

// NewToolPluginRepository 创建工具插件仓储
func NewToolPluginRepository(client *Client) *ToolPluginRepository {
	return &ToolPluginRepository{client: client}
}

// Create 创建插件
func (r *ToolPluginRepository) Create(ctx context.Context, plugin *entity.ToolPlugin) error {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(plugin).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create tool plugin: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取插件
func (r *ToolPluginRepository) GetByID(ctx context.Context, id string) (*entity.ToolPlugin, error) {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var plugin entity.ToolPlugin
	if err := db.First(&plugin, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tool plugin: %w", err)
	}
	return &plugin, nil
}

// GetByName 根据插件名获取插件
func (r *ToolPluginRepository) GetByName(ctx context.Context, pluginName string) (*entity.ToolPlugin, error) {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.GetByName")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var plugin entity.ToolPlugin
	if err := db.Where("plugin_name = ?", pluginName).First(&plugin).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tool plugin by name: %w", err)
	}
	return &plugin, nil
}

// Update 更新插件
func (r *ToolPluginRepository) Update(ctx context.Context, plugin *entity.ToolPlugin) error {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(plugin).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update tool plugin: %w", err)
	}
	return nil
}

// Delete 删除插件
func (r *ToolPluginRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ToolPlugin{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete tool plugin: %w", err)
	}
	return nil
}

// ListByTenant 获取租户全部插件
func (r *ToolPluginRepository) ListByTenant(ctx context.Context) ([]*entity.ToolPlugin, error) {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.ListByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var plugins []*entity.ToolPlugin
	if err := db.Order("created_at ASC").Find(&plugins).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tool plugins: %w", err)
	}
	return plugins, nil
}

// ListEnabled 获取租户已启用插件
func (r *ToolPluginRepository) ListEnabled(ctx context.Context) ([]*entity.ToolPlugin, error) {
	ctx, span := tracer.Start(ctx, "postgres.ToolPluginRepository.ListEnabled")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var plugins []*entity.ToolPlugin
	if err := db.Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&plugins).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list enabled plugins: %w", err)
	}
	return plugins, nil
}
