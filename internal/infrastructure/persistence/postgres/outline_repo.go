// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
)

// OutlineRepository 大纲仓储实现
type OutlineRepository struct {
	client *Client
}

// NewOutlineRepository 创建大纲仓储
func NewOutlineRepository(client *Client) *OutlineRepository {
	return &OutlineRepository{client: client}
}

// Create 创建大纲节点
func (r *OutlineRepository) Create(ctx context.Context, outline *entity.Outline) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(outline).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create outline: %w", err)
	}
	return nil
}

// CreateBatch 批量创建大纲节点
func (r *OutlineRepository) CreateBatch(ctx context.Context, outlines []*entity.Outline) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.CreateBatch")
	defer span.End()

	if len(outlines) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(outlines).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create outlines: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取大纲节点
func (r *OutlineRepository) GetByID(ctx context.Context, id string) (*entity.Outline, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var outline entity.Outline
	if err := db.First(&outline, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get outline: %w", err)
	}
	return &outline, nil
}

// GetByProjectAndOrder 根据项目和序号获取大纲节点
func (r *OutlineRepository) GetByProjectAndOrder(ctx context.Context, projectID string, orderIndex int) (*entity.Outline, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.GetByProjectAndOrder")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var outline entity.Outline
	if err := db.Where("project_id = ? AND order_index = ?", projectID, orderIndex).
		First(&outline).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get outline by order: %w", err)
	}
	return &outline, nil
}

// Update 更新大纲节点
func (r *OutlineRepository) Update(ctx context.Context, outline *entity.Outline) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(outline).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update outline: %w", err)
	}
	return nil
}

// Delete 删除大纲节点
func (r *OutlineRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Outline{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete outline: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部大纲
func (r *OutlineRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.Outline{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete outlines by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByProject 按序号升序获取项目全部大纲
func (r *OutlineRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Outline, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var outlines []*entity.Outline
	if err := db.Where("project_id = ?", projectID).
		Order("order_index ASC").
		Find(&outlines).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list outlines: %w", err)
	}
	return outlines, nil
}

// MaxOrderIndex 获取项目当前最大序号，无大纲时返回 0
func (r *OutlineRepository) MaxOrderIndex(ctx context.Context, projectID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.MaxOrderIndex")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var maxOrder *int
	if err := db.Model(&entity.Outline{}).
		Where("project_id = ?", projectID).
		Select("MAX(order_index)").
		Scan(&maxOrder).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get max order index: %w", err)
	}
	if maxOrder == nil {
		return 0, nil
	}
	return *maxOrder, nil
}

// ShiftOrderAfter 将序号大于 after 的节点整体平移 delta
func (r *OutlineRepository) ShiftOrderAfter(ctx context.Context, projectID string, after, delta int) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.ShiftOrderAfter")
	defer span.End()

	if delta == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	order := "order_index ASC"
	if delta > 0 {
		order = "order_index DESC"
	}

	var ids []string
	if err := db.Model(&entity.Outline{}).
		Where("project_id = ? AND order_index > ?", projectID, after).
		Order(order).
		Pluck("id", &ids).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to collect outlines for shift: %w", err)
	}

	for _, id := range ids {
		if err := db.Model(&entity.Outline{}).
			Where("id = ?", id).
			Update("order_index", gorm.Expr("order_index + ?", delta)).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to shift outline order: %w", err)
		}
	}
	return nil
}

// CountByProject 统计项目大纲数
func (r *OutlineRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.Outline{}).
		Where("project_id = ?", projectID).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count outlines: %w", err)
	}
	return count, nil
}
