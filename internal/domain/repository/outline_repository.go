// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// OutlineRepository 大纲仓储接口
type OutlineRepository interface {
	// Create 创建大纲节点
	Create(ctx context.Context, outline *entity.Outline) error

	// CreateBatch 批量创建大纲节点
	CreateBatch(ctx context.Context, outlines []*entity.Outline) error

	// GetByID 根据 ID 获取大纲节点
	GetByID(ctx context.Context, id string) (*entity.Outline, error)

	// GetByProjectAndOrder 根据项目和序号获取大纲节点
	GetByProjectAndOrder(ctx context.Context, projectID string, orderIndex int) (*entity.Outline, error)

	// Update 更新大纲节点
	Update(ctx context.Context, outline *entity.Outline) error

	// Delete 删除大纲节点
	Delete(ctx context.Context, id string) error

	// DeleteByProject 删除项目全部大纲，返回删除数量
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByProject 按序号升序获取项目全部大纲
	ListByProject(ctx context.Context, projectID string) ([]*entity.Outline, error)

	// MaxOrderIndex 获取项目当前最大序号，无大纲时返回 0
	MaxOrderIndex(ctx context.Context, projectID string) (int, error)

	// ShiftOrderAfter 将序号大于 after 的节点整体平移 delta
	ShiftOrderAfter(ctx context.Context, projectID string, after, delta int) error

	// CountByProject 统计项目大纲数
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
