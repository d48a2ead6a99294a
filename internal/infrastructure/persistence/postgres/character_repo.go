// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// CharacterRepository 角色仓储实现
type CharacterRepository struct {
	client *Client
}

// NewCharacterRepository 创建角色仓储
func NewCharacterRepository(client *Client) *CharacterRepository {
	return &CharacterRepository{client: client}
}

// Create 创建角色
func (r *CharacterRepository) Create(ctx context.Context, character *entity.Character) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(character).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create character: %w", err)
	}
	return nil
}

// CreateBatch 批量创建角色
func (r *CharacterRepository) CreateBatch(ctx context.Context, characters []*entity.Character) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.CreateBatch")
	defer span.End()

	if len(characters) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(characters).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create characters: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取角色
func (r *CharacterRepository) GetByID(ctx context.Context, id string) (*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var character entity.Character
	if err := db.First(&character, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &character, nil
}

// GetByName 根据项目和名称获取角色
func (r *CharacterRepository) GetByName(ctx context.Context, projectID, name string) (*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.GetByName")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var character entity.Character
	if err := db.Where("project_id = ? AND name = ?", projectID, name).
		First(&character).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get character by name: %w", err)
	}
	return &character, nil
}

// Update 更新角色
func (r *CharacterRepository) Update(ctx context.Context, character *entity.Character) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(character).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update character: %w", err)
	}
	return nil
}

// Delete 删除角色
func (r *CharacterRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Character{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部角色
func (r *CharacterRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.Character{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete characters by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByProject 获取项目角色列表
func (r *CharacterRepository) ListByProject(ctx context.Context, projectID string, filter *repository.CharacterFilter) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("project_id = ?", projectID)

	if filter != nil {
		if filter.CharacterType != "" {
			query = query.Where("character_type = ?", filter.CharacterType)
		}
		if filter.IsOrganization != nil {
			query = query.Where("is_organization = ?", *filter.IsOrganization)
		}
	}

	var characters []*entity.Character
	if err := query.Order("created_at ASC").Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, nil
}

// CountByProject 统计项目角色数
func (r *CharacterRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.Character{}).
		Where("project_id = ?", projectID).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count characters: %w", err)
	}
	return count, nil
}
