// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// MemoryFragmentRepository 记忆片段仓储接口
type MemoryFragmentRepository interface {
	// Create 创建记忆片段
	Create(ctx context.Context, fragment *entity.MemoryFragment) error

	// CreateBatch 批量创建记忆片段
	CreateBatch(ctx context.Context, fragments []*entity.MemoryFragment) error

	// GetByID 根据 ID 获取记忆片段
	GetByID(ctx context.Context, id string) (*entity.MemoryFragment, error)

	// Delete 删除记忆片段
	Delete(ctx context.Context, id string) error

	// DeleteByChapter 删除章节全部记忆片段（幂等）
	DeleteByChapter(ctx context.Context, projectID, chapterID string) (int64, error)

	// DeleteByProject 删除项目全部记忆片段
	DeleteByProject(ctx context.Context, projectID string) (int64, error)

	// ListByChapter 获取章节全部记忆片段
	ListByChapter(ctx context.Context, projectID, chapterID string) ([]*entity.MemoryFragment, error)

	// ListByProject 分页获取项目记忆片段
	ListByProject(ctx context.Context, projectID string, memType entity.MemoryType, pagination Pagination) (*PagedResult[*entity.MemoryFragment], error)

	// ListByIDs 按 ID 集合获取记忆片段，保持入参顺序
	ListByIDs(ctx context.Context, ids []string) ([]*entity.MemoryFragment, error)

	// ListByVectorIDs 按向量 ID 集合获取记忆片段，保持入参顺序
	ListByVectorIDs(ctx context.Context, projectID string, vectorIDs []string) ([]*entity.MemoryFragment, error)

	// ListRecent 按时间线倒序获取 beforeChapter 之前的记忆片段
	ListRecent(ctx context.Context, projectID string, beforeChapter, limit int) ([]*entity.MemoryFragment, error)

	// ListPlantedForeshadows 获取尚未回收的伏笔（时间线早于 beforeChapter）
	ListPlantedForeshadows(ctx context.Context, projectID string, beforeChapter int) ([]*entity.MemoryFragment, error)

	// ListLatestCharacterEvents 获取每个角色最近一条状态事件
	ListLatestCharacterEvents(ctx context.Context, projectID string, beforeChapter int, names []string) ([]*entity.MemoryFragment, error)

	// ListTopPlotPoints 获取最近 window 章内按重要度排序的情节点
	ListTopPlotPoints(ctx context.Context, projectID string, beforeChapter, window, limit int) ([]*entity.MemoryFragment, error)
}
