// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// ChapterRepository 章节仓储接口
type ChapterRepository interface {
	// Create 创建章节
	Create(ctx context.Context, chapter *entity.Chapter) error

	// CreateBatch 批量创建章节
	CreateBatch(ctx context.Context, chapters []*entity.Chapter) error

	// GetByID 根据 ID 获取章节
	GetByID(ctx context.Context, id string) (*entity.Chapter, error)

	// GetByProjectAndNumber 根据项目和章节号获取章节
	GetByProjectAndNumber(ctx context.Context, projectID string, number int) (*entity.Chapter, error)

	// Update 更新章节
	Update(ctx context.Context, chapter *entity.Chapter) error

	// Delete 删除章节
	Delete(ctx context.Context, id string) error

	// DeleteByProject 删除项目全部章节，返回删除数量
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByProject 按章节号升序获取项目全部章节
	ListByProject(ctx context.Context, projectID string) ([]*entity.Chapter, error)

	// ListMissingPrerequisites 返回指定章节号之前内容为空的章节号列表
	ListMissingPrerequisites(ctx context.Context, projectID string, beforeNumber int) ([]int, error)

	// ListRecentWithContent 按章节号倒序获取最近有正文的章节
	ListRecentWithContent(ctx context.Context, projectID string, beforeNumber, limit int) ([]*entity.Chapter, error)

	// ShiftNumbersAfter 将章节号大于 after 的章节整体平移 delta
	ShiftNumbersAfter(ctx context.Context, projectID string, after, delta int) error

	// CountByProject 统计项目章节数
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
