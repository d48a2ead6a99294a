// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"novelforge-api/internal/domain/entity"
)

// GenerationHistoryRepository 生成历史仓储接口
type GenerationHistoryRepository interface {
	// Create 追加历史记录
	Create(ctx context.Context, history *entity.GenerationHistory) error

	// ListByProject 按时间倒序分页获取项目历史
	ListByProject(ctx context.Context, projectID string, genType entity.GenerationType, pagination Pagination) (*PagedResult[*entity.GenerationHistory], error)

	// DeleteByProject 删除项目全部历史
	DeleteByProject(ctx context.Context, projectID string) (int64, error)
}
