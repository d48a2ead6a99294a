// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// ChapterAnalysisRepository 章节分析仓储实现
type ChapterAnalysisRepository struct {
	client *Client
}

// NewChapterAnalysisRepository 创建章节分析仓储
func NewChapterAnalysisRepository(client *Client) *ChapterAnalysisRepository {
	return &ChapterAnalysisRepository{client: client}
}

// Upsert 按章节写入分析结果，已存在时覆盖
func (r *ChapterAnalysisRepository) Upsert(ctx context.Context, analysis *entity.ChapterAnalysis) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterAnalysisRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var existing entity.ChapterAnalysis
	err := db.Where("chapter_id = ?", analysis.ChapterID).First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return fmt.Errorf("failed to query existing analysis: %w", err)
	}

	if err == nil {
		analysis.ID = existing.ID
		analysis.AnalyzedAt = existing.AnalyzedAt
		if err := db.Save(analysis).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to update chapter analysis: %w", err)
		}
		return nil
	}

	if err := db.Create(analysis).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chapter analysis: %w", err)
	}
	return nil
}

// GetByChapterID 根据章节获取分析结果
func (r *ChapterAnalysisRepository) GetByChapterID(ctx context.Context, chapterID string) (*entity.ChapterAnalysis, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterAnalysisRepository.GetByChapterID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var analysis entity.ChapterAnalysis
	if err := db.Where("chapter_id = ?", chapterID).First(&analysis).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter analysis: %w", err)
	}
	return &analysis, nil
}

// DeleteByChapter 删除章节分析结果
func (r *ChapterAnalysisRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterAnalysisRepository.DeleteByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("chapter_id = ?", chapterID).
		Delete(&entity.ChapterAnalysis{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chapter analysis: %w", err)
	}
	return nil
}

// ListByProject 获取项目全部分析结果
func (r *ChapterAnalysisRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.ChapterAnalysis, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterAnalysisRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var analyses []*entity.ChapterAnalysis
	if err := db.Where("project_id = ?", projectID).
		Order("analyzed_at ASC").
		Find(&analyses).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapter analyses: %w", err)
	}
	return analyses, nil
}

// AnalysisTaskRepository 分析任务仓储实现
type AnalysisTaskRepository struct {
	client *Client
}

// NewAnalysisTaskRepository 创建分析任务仓储
func NewAnalysisTaskRepository(client *Client) *AnalysisTaskRepository {
	return &AnalysisTaskRepository{client: client}
}

// Create 创建任务
func (r *AnalysisTaskRepository) Create(ctx context.Context, task *entity.AnalysisTask) error {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(task).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create analysis task: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *AnalysisTaskRepository) GetByID(ctx context.Context, id string) (*entity.AnalysisTask, error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var task entity.AnalysisTask
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get analysis task: %w", err)
	}
	return &task, nil
}

// GetLatestByChapter 获取章节最近一次任务
func (r *AnalysisTaskRepository) GetLatestByChapter(ctx context.Context, chapterID string) (*entity.AnalysisTask, error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.GetLatestByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var task entity.AnalysisTask
	if err := db.Where("chapter_id = ?", chapterID).
		Order("created_at DESC").
		First(&task).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest analysis task: %w", err)
	}
	return &task, nil
}

// Update 更新任务
func (r *AnalysisTaskRepository) Update(ctx context.Context, task *entity.AnalysisTask) error {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(task).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update analysis task: %w", err)
	}
	return nil
}

// UpdateProgress 更新任务进度
func (r *AnalysisTaskRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.UpdateProgress")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.AnalysisTask{}).
		Where("id = ?", id).
		Update("progress", progress).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

// ListByProject 分页获取项目任务
func (r *AnalysisTaskRepository) ListByProject(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.AnalysisTask], error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.AnalysisTask{}).Where("project_id = ?", projectID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count analysis tasks: %w", err)
	}

	var tasks []*entity.AnalysisTask
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&tasks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list analysis tasks: %w", err)
	}

	return repository.NewPagedResult(tasks, total, pagination), nil
}

// ListStuck 获取疑似卡死任务
// running 任务以 started_at 判断，pending 任务以 created_at 判断
func (r *AnalysisTaskRepository) ListStuck(ctx context.Context, runningBefore, pendingBefore time.Time, limit int) ([]*entity.AnalysisTask, error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalysisTaskRepository.ListStuck")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var tasks []*entity.AnalysisTask
	if err := db.Where(
		"(status = ? AND COALESCE(started_at, created_at) < ?) OR (status = ? AND created_at < ?)",
		entity.AnalysisTaskStatusRunning, runningBefore,
		entity.AnalysisTaskStatusPending, pendingBefore,
	).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stuck analysis tasks: %w", err)
	}
	return tasks, nil
}
