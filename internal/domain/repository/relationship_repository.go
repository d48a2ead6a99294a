// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// RelationshipTypeRepository 关系类型词表仓储接口
type RelationshipTypeRepository interface {
	// CreateBatch 批量创建关系类型（播种用）
	CreateBatch(ctx context.Context, types []*entity.RelationshipType) error

	// ListByTenant 获取租户全部关系类型
	ListByTenant(ctx context.Context) ([]*entity.RelationshipType, error)

	// GetByName 根据名称获取关系类型
	GetByName(ctx context.Context, name string) (*entity.RelationshipType, error)

	// CountByTenant 统计租户关系类型数（播种幂等判断）
	CountByTenant(ctx context.Context) (int64, error)
}

// CharacterRelationshipRepository 角色关系仓储接口
type CharacterRelationshipRepository interface {
	// Upsert 写入关系，(project, from, to) 冲突时覆盖
	Upsert(ctx context.Context, rel *entity.CharacterRelationship) error

	// GetByEdge 根据 (project, from, to) 获取关系
	GetByEdge(ctx context.Context, projectID, fromID, toID string) (*entity.CharacterRelationship, error)

	// Delete 删除关系
	Delete(ctx context.Context, id string) error

	// DeleteByProject 删除项目全部关系
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByProject 获取项目全部关系
	ListByProject(ctx context.Context, projectID string) ([]*entity.CharacterRelationship, error)

	// ListByCharacter 获取指定角色的出边与入边
	ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterRelationship, error)
}
