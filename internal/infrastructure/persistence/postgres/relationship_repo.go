// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novelforge-api/internal/domain/entity"
)

// RelationshipTypeRepository 关系类型词表仓储实现
type RelationshipTypeRepository struct {
	client *Client
}

// NewRelationshipTypeRepository 创建关系类型仓储
func NewRelationshipTypeRepository(client *Client) *RelationshipTypeRepository {
	return &RelationshipTypeRepository{client: client}
}

// CreateBatch 批量创建关系类型
func (r *RelationshipTypeRepository) CreateBatch(ctx context.Context, types []*entity.RelationshipType) error {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipTypeRepository.CreateBatch")
	defer span.End()

	if len(types) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(types).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create relationship types: %w", err)
	}
	return nil
}

// ListByTenant 获取租户全部关系类型
func (r *RelationshipTypeRepository) ListByTenant(ctx context.Context) ([]*entity.RelationshipType, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipTypeRepository.ListByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var types []*entity.RelationshipType
	if err := db.Order("category ASC, name ASC").Find(&types).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list relationship types: %w", err)
	}
	return types, nil
}

// GetByName 根据名称获取关系类型
func (r *RelationshipTypeRepository) GetByName(ctx context.Context, name string) (*entity.RelationshipType, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipTypeRepository.GetByName")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var relType entity.RelationshipType
	if err := db.Where("name = ?", name).First(&relType).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get relationship type: %w", err)
	}
	return &relType, nil
}

// CountByTenant 统计租户关系类型数
func (r *RelationshipTypeRepository) CountByTenant(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationshipTypeRepository.CountByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.RelationshipType{}).Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count relationship types: %w", err)
	}
	return count, nil
}

// CharacterRelationshipRepository 角色关系仓储实现
type CharacterRelationshipRepository struct {
	client *Client
}

// NewCharacterRelationshipRepository 创建角色关系仓储
func NewCharacterRelationshipRepository(client *Client) *CharacterRelationshipRepository {
	return &CharacterRelationshipRepository{client: client}
}

// Upsert 写入关系，(project, from, to) 已存在时覆盖
func (r *CharacterRelationshipRepository) Upsert(ctx context.Context, rel *entity.CharacterRelationship) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var existing entity.CharacterRelationship
	err := db.Where("project_id = ? AND from_character_id = ? AND to_character_id = ?",
		rel.ProjectID, rel.FromCharacterID, rel.ToCharacterID).
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return fmt.Errorf("failed to query existing relationship: %w", err)
	}

	if err == nil {
		rel.ID = existing.ID
		rel.CreatedAt = existing.CreatedAt
		if err := db.Save(rel).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to update relationship: %w", err)
		}
		return nil
	}

	if err := db.Create(rel).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

// GetByEdge 根据 (project, from, to) 获取关系
func (r *CharacterRelationshipRepository) GetByEdge(ctx context.Context, projectID, fromID, toID string) (*entity.CharacterRelationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.GetByEdge")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rel entity.CharacterRelationship
	if err := db.Where("project_id = ? AND from_character_id = ? AND to_character_id = ?",
		projectID, fromID, toID).
		First(&rel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return &rel, nil
}

// Delete 删除关系
func (r *CharacterRelationshipRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.CharacterRelationship{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部关系
func (r *CharacterRelationshipRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.CharacterRelationship{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete relationships by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByProject 获取项目全部关系
func (r *CharacterRelationshipRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.CharacterRelationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rels []*entity.CharacterRelationship
	if err := db.Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&rels).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, nil
}

// ListByCharacter 获取指定角色的出边与入边
func (r *CharacterRelationshipRepository) ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterRelationship, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRelationshipRepository.ListByCharacter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rels []*entity.CharacterRelationship
	if err := db.Where("from_character_id = ? OR to_character_id = ?", characterID, characterID).
		Order("created_at ASC").
		Find(&rels).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list relationships by character: %w", err)
	}
	return rels, nil
}
