// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// OrganizationRepository 组织仓储接口
type OrganizationRepository interface {
	// Create 创建组织
	Create(ctx context.Context, org *entity.Organization) error

	// GetByID 根据 ID 获取组织
	GetByID(ctx context.Context, id string) (*entity.Organization, error)

	// GetByCharacterID 根据代表角色行获取组织
	GetByCharacterID(ctx context.Context, characterID string) (*entity.Organization, error)

	// Update 更新组织
	Update(ctx context.Context, org *entity.Organization) error

	// Delete 删除组织
	Delete(ctx context.Context, id string) error

	// DeleteByProject 删除项目全部组织
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByProject 获取项目组织列表
	ListByProject(ctx context.Context, projectID string) ([]*entity.Organization, error)
}

// OrganizationMemberRepository 组织成员仓储接口
type OrganizationMemberRepository interface {
	// Create 创建成员关系，(organization, character) 重复时忽略
	Create(ctx context.Context, member *entity.OrganizationMember) error

	// Exists 成员关系是否已存在
	Exists(ctx context.Context, organizationID, characterID string) (bool, error)

	// ListByOrganization 获取组织成员列表
	ListByOrganization(ctx context.Context, organizationID string) ([]*entity.OrganizationMember, error)

	// DeleteByOrganization 删除组织全部成员关系
	DeleteByOrganization(ctx context.Context, organizationID string) (int64, error)
}
