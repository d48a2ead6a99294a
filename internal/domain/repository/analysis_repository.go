// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"novelforge-api/internal/domain/entity"
)

// ChapterAnalysisRepository 章节分析仓储接口
type ChapterAnalysisRepository interface {
	// Upsert 按章节写入分析结果，已存在时覆盖
	Upsert(ctx context.Context, analysis *entity.ChapterAnalysis) error

	// GetByChapterID 根据章节获取分析结果
	GetByChapterID(ctx context.Context, chapterID string) (*entity.ChapterAnalysis, error)

	// DeleteByChapter 删除章节分析结果
	DeleteByChapter(ctx context.Context, chapterID string) error

	// ListByProject 获取项目全部分析结果
	ListByProject(ctx context.Context, projectID string) ([]*entity.ChapterAnalysis, error)
}

// AnalysisTaskRepository 分析任务仓储接口
type AnalysisTaskRepository interface {
	// Create 创建任务
	Create(ctx context.Context, task *entity.AnalysisTask) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.AnalysisTask, error)

	// GetLatestByChapter 获取章节最近一次任务
	GetLatestByChapter(ctx context.Context, chapterID string) (*entity.AnalysisTask, error)

	// Update 更新任务
	Update(ctx context.Context, task *entity.AnalysisTask) error

	// UpdateProgress 更新任务进度
	UpdateProgress(ctx context.Context, id string, progress int) error

	// ListByProject 分页获取项目任务
	ListByProject(ctx context.Context, projectID string, pagination Pagination) (*PagedResult[*entity.AnalysisTask], error)

	// ListStuck 获取卡死任务：running 早于 runningBefore 或 pending 早于 pendingBefore
	ListStuck(ctx context.Context, runningBefore, pendingBefore time.Time, limit int) ([]*entity.AnalysisTask, error)
}
