// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// WritingStyleRepository 写作风格仓储接口
type WritingStyleRepository interface {
	// Create 创建风格
	Create(ctx context.Context, style *entity.WritingStyle) error

	// CreateBatch 批量创建风格（播种预置用）
	CreateBatch(ctx context.Context, styles []*entity.WritingStyle) error

	// GetByID 根据 ID 获取风格
	GetByID(ctx context.Context, id string) (*entity.WritingStyle, error)

	// Update 更新风格
	Update(ctx context.Context, style *entity.WritingStyle) error

	// Delete 删除风格
	Delete(ctx context.Context, id string) error

	// ListGlobal 获取租户全局预置风格，按 order_index 升序
	ListGlobal(ctx context.Context) ([]*entity.WritingStyle, error)

	// ListForProject 获取项目可用风格（全局预置 + 项目自定义）
	ListForProject(ctx context.Context, projectID string) ([]*entity.WritingStyle, error)

	// GetFirstPreset 获取 order_index 最小的全局预置风格
	GetFirstPreset(ctx context.Context) (*entity.WritingStyle, error)

	// CountPresets 统计租户预置风格数（播种幂等判断）
	CountPresets(ctx context.Context) (int64, error)
}

// ProjectDefaultStyleRepository 项目默认风格仓储接口
type ProjectDefaultStyleRepository interface {
	// Upsert 设置项目默认风格，已存在时覆盖
	Upsert(ctx context.Context, def *entity.ProjectDefaultStyle) error

	// GetByProject 获取项目默认风格
	GetByProject(ctx context.Context, projectID string) (*entity.ProjectDefaultStyle, error)

	// DeleteByProject 清除项目默认风格
	DeleteByProject(ctx context.Context, projectID string) error
}
