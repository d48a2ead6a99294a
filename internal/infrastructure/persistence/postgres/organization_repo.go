// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novelforge-api/internal/domain/entity"
)

// OrganizationRepository 组织仓储实现
type OrganizationRepository struct {
	client *Client
}

// NewOrganizationRepository 创建组织仓储
func NewOrganizationRepository(client *Client) *OrganizationRepository {
	return &OrganizationRepository{client: client}
}

// Create 创建组织
func (r *OrganizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(org).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取组织
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var org entity.Organization
	if err := db.First(&org, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// GetByCharacterID 根据代表角色行获取组织
func (r *OrganizationRepository) GetByCharacterID(ctx context.Context, characterID string) (*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.GetByCharacterID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var org entity.Organization
	if err := db.Where("character_id = ?", characterID).First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get organization by character: %w", err)
	}
	return &org, nil
}

// Update 更新组织
func (r *OrganizationRepository) Update(ctx context.Context, org *entity.Organization) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(org).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

// Delete 删除组织
func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Organization{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部组织
func (r *OrganizationRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.Organization{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete organizations by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByProject 获取项目组织列表
func (r *OrganizationRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var orgs []*entity.Organization
	if err := db.Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&orgs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// OrganizationMemberRepository 组织成员仓储实现
type OrganizationMemberRepository struct {
	client *Client
}

// NewOrganizationMemberRepository 创建组织成员仓储
func NewOrganizationMemberRepository(client *Client) *OrganizationMemberRepository {
	return &OrganizationMemberRepository{client: client}
}

// Create 创建成员关系，重复时忽略
func (r *OrganizationMemberRepository) Create(ctx context.Context, member *entity.OrganizationMember) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationMemberRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create organization member: %w", err)
	}
	return nil
}

// Exists 成员关系是否已存在
func (r *OrganizationMemberRepository) Exists(ctx context.Context, organizationID, characterID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationMemberRepository.Exists")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.OrganizationMember{}).
		Where("organization_id = ? AND character_id = ?", organizationID, characterID).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check member existence: %w", err)
	}
	return count > 0, nil
}

// ListByOrganization 获取组织成员列表
func (r *OrganizationMemberRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*entity.OrganizationMember, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationMemberRepository.ListByOrganization")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var members []*entity.OrganizationMember
	if err := db.Where("organization_id = ?", organizationID).
		Order("rank DESC, created_at ASC").
		Find(&members).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	return members, nil
}

// DeleteByOrganization 删除组织全部成员关系
func (r *OrganizationMemberRepository) DeleteByOrganization(ctx context.Context, organizationID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationMemberRepository.DeleteByOrganization")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("organization_id = ?", organizationID).Delete(&entity.OrganizationMember{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete organization members: %w", result.Error)
	}
	return result.RowsAffected, nil
}
