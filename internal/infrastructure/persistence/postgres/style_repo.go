// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
)

// WritingStyleRepository 写作风格仓储实现
type WritingStyleRepository struct {
	client *Client
}

// NewWritingStyleRepository 创建写作风格仓储
func NewWritingStyleRepository(client *Client) *WritingStyleRepository {
	return &WritingStyleRepository{client: client}
}

// Create 创建风格
func (r *WritingStyleRepository) Create(ctx context.Context, style *entity.WritingStyle) error {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(style).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create writing style: %w", err)
	}
	return nil
}

// CreateBatch 批量创建风格
func (r *WritingStyleRepository) CreateBatch(ctx context.Context, styles []*entity.WritingStyle) error {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.CreateBatch")
	defer span.End()

	if len(styles) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(styles).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create writing styles: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取风格
func (r *WritingStyleRepository) GetByID(ctx context.Context, id string) (*entity.WritingStyle, error) {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var style entity.WritingStyle
	if err := db.First(&style, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get writing style: %w", err)
	}
	return &style, nil
}

// Update 更新风格
func (r *WritingStyleRepository) Update(ctx context.Context, style *entity.WritingStyle) error {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(style).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update writing style: %w", err)
	}
	return nil
}

// Delete 删除风格
func (r *WritingStyleRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.WritingStyle{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete writing style: %w", err)
	}
	return nil
}

// ListGlobal 获取租户全局预置风格，按 order_index 升序
func (r *WritingStyleRepository) ListGlobal(ctx context.Context) ([]*entity.WritingStyle, error) {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.ListGlobal")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var styles []*entity.WritingStyle
	if err := db.Where("project_id IS NULL").
		Order("order_index ASC").
		Find(&styles).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list global styles: %w", err)
	}
	return styles, nil
}

// ListForProject 获取项目可用风格（全局预置 + 项目自定义）
func (r *WritingStyleRepository) ListForProject(ctx context.Context, projectID string) ([]*entity.WritingStyle, error) {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.ListForProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var styles []*entity.WritingStyle
	if err := db.Where("project_id IS NULL OR project_id = ?", projectID).
		Order("is_preset DESC, order_index ASC, created_at ASC").
		Find(&styles).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list styles for project: %w", err)
	}
	return styles, nil
}

// GetFirstPreset 获取 order_index 最小的全局预置风格
func (r *WritingStyleRepository) GetFirstPreset(ctx context.Context) (*entity.WritingStyle, error) {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.GetFirstPreset")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var style entity.WritingStyle
	if err := db.Where("project_id IS NULL AND is_preset = ?", true).
		Order("order_index ASC").
		First(&style).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get first preset style: %w", err)
	}
	return &style, nil
}

// CountPresets 统计租户预置风格数
func (r *WritingStyleRepository) CountPresets(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.WritingStyleRepository.CountPresets")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.WritingStyle{}).
		Where("is_preset = ?", true).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count preset styles: %w", err)
	}
	return count, nil
}

// ProjectDefaultStyleRepository 项目默认风格仓储实现
type ProjectDefaultStyleRepository struct {
	client *Client
}

// NewProjectDefaultStyleRepository 创建项目默认风格仓储
func NewProjectDefaultStyleRepository(client *Client) *ProjectDefaultStyleRepository {
	return &ProjectDefaultStyleRepository{client: client}
}

// Upsert 设置项目默认风格，已存在时覆盖
func (r *ProjectDefaultStyleRepository) Upsert(ctx context.Context, def *entity.ProjectDefaultStyle) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectDefaultStyleRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var existing entity.ProjectDefaultStyle
	err := db.Where("project_id = ?", def.ProjectID).First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return fmt.Errorf("failed to query default style: %w", err)
	}

	if err == nil {
		existing.StyleID = def.StyleID
		if saveErr := db.Save(&existing).Error; saveErr != nil {
			span.RecordError(saveErr)
			return fmt.Errorf("failed to update default style: %w", saveErr)
		}
		*def = existing
		return nil
	}

	if err := db.Create(def).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create default style: %w", err)
	}
	return nil
}

// GetByProject 获取项目默认风格
func (r *ProjectDefaultStyleRepository) GetByProject(ctx context.Context, projectID string) (*entity.ProjectDefaultStyle, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectDefaultStyleRepository.GetByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var def entity.ProjectDefaultStyle
	if err := db.Where("project_id = ?", projectID).First(&def).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get default style: %w", err)
	}
	return &def, nil
}

// DeleteByProject 清除项目默认风格
func (r *ProjectDefaultStyleRepository) DeleteByProject(ctx context.Context, projectID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectDefaultStyleRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("project_id = ?", projectID).
		Delete(&entity.ProjectDefaultStyle{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete default style: %w", err)
	}
	return nil
}
