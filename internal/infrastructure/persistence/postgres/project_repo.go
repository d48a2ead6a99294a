// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// ProjectRepository 项目仓储实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取项目
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var project entity.Project
	if err := db.First(&project, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// Update 更新项目
func (r *ProjectRepository) Update(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Delete 删除项目
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Project{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// List 获取项目列表
func (r *ProjectRepository) List(ctx context.Context, filter *repository.ProjectFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Project{})

	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.WizardStatus != "" {
			query = query.Where("wizard_status = ?", filter.WizardStatus)
		}
		if filter.Genre != "" {
			query = query.Where("genre = ?", filter.Genre)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	var projects []*entity.Project
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&projects).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return repository.NewPagedResult(projects, total, pagination), nil
}

// UpdateWordCount 按增量更新累计字数，下限为 0
func (r *ProjectRepository) UpdateWordCount(ctx context.Context, id string, delta int) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.UpdateWordCount")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Project{}).
		Where("id = ?", id).
		Update("current_words", gorm.Expr("GREATEST(current_words + ?, 0)", delta)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update project word count: %w", err)
	}
	return nil
}

// GetStats 获取项目统计信息
func (r *ProjectRepository) GetStats(ctx context.Context, id string) (*repository.ProjectStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetStats")
	defer span.End()

	db := getDB(ctx, r.client.db)
	stats := &repository.ProjectStats{}

	var chapterCount int64
	if err := db.Model(&entity.Chapter{}).Where("project_id = ?", id).Count(&chapterCount).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count chapters: %w", err)
	}
	stats.TotalChapters = int(chapterCount)

	var outlineCount int64
	if err := db.Model(&entity.Outline{}).Where("project_id = ?", id).Count(&outlineCount).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count outlines: %w", err)
	}
	stats.TotalOutlines = int(outlineCount)

	var characterCount int64
	if err := db.Model(&entity.Character{}).Where("project_id = ?", id).Count(&characterCount).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count characters: %w", err)
	}
	stats.TotalCharacters = int(characterCount)

	var wordCount *int64
	if err := db.Model(&entity.Chapter{}).
		Where("project_id = ?", id).
		Select("SUM(word_count)").
		Scan(&wordCount).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to sum word count: %w", err)
	}
	if wordCount != nil {
		stats.TotalWordCount = *wordCount
	}

	return stats, nil
}
