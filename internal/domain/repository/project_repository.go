// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// ProjectFilter 项目过滤条件
type ProjectFilter struct {
	Status       entity.ProjectStatus
	WizardStatus entity.WizardStatus
	Genre        string
}

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// Create 创建项目
	Create(ctx context.Context, project *entity.Project) error

	// GetByID 根据 ID 获取项目
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// Update 更新项目
	Update(ctx context.Context, project *entity.Project) error

	// Delete 删除项目
	Delete(ctx context.Context, id string) error

	// List 获取项目列表
	List(ctx context.Context, filter *ProjectFilter, pagination Pagination) (*PagedResult[*entity.Project], error)

	// UpdateWordCount 按增量更新累计字数
	UpdateWordCount(ctx context.Context, id string, delta int) error

	// GetStats 获取项目统计信息
	GetStats(ctx context.Context, id string) (*ProjectStats, error)
}

// ProjectStats 项目统计信息
type ProjectStats struct {
	TotalChapters   int   `json:"total_chapters"`
	TotalOutlines   int   `json:"total_outlines"`
	TotalCharacters int   `json:"total_characters"`
	TotalWordCount  int64 `json:"total_word_count"`
}
