// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// CharacterFilter 角色过滤条件
type CharacterFilter struct {
	CharacterType  entity.CharacterType
	IsOrganization *bool
}

// CharacterRepository 角色仓储接口
type CharacterRepository interface {
	// Create 创建角色
	Create(ctx context.Context, character *entity.Character) error

	// CreateBatch 批量创建角色
	CreateBatch(ctx context.Context, characters []*entity.Character) error

	// GetByID 根据 ID 获取角色
	GetByID(ctx context.Context, id string) (*entity.Character, error)

	// GetByName 根据项目和名称获取角色
	GetByName(ctx context.Context, projectID, name string) (*entity.Character, error)

	// Update 更新角色
	Update(ctx context.Context, character *entity.Character) error

	// Delete 删除角色
	Delete(ctx context.Context, id string) error

	// DeleteByProject 删除项目全部角色，返回删除数量
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByProject 获取项目角色列表
	ListByProject(ctx context.Context, projectID string, filter *CharacterFilter) ([]*entity.Character, error)

	// CountByProject 统计项目角色数
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
