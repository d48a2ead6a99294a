// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// MemoryFragmentRepository 记忆片段仓储实现
type MemoryFragmentRepository struct {
	client *Client
}

// NewMemoryFragmentRepository 创建记忆片段仓储
func NewMemoryFragmentRepository(client *Client) *MemoryFragmentRepository {
	return &MemoryFragmentRepository{client: client}
}

// Create 创建记忆片段
func (r *MemoryFragmentRepository) Create(ctx context.Context, fragment *entity.MemoryFragment) error {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(fragment).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create memory fragment: %w", err)
	}
	return nil
}

// CreateBatch 批量创建记忆片段
func (r *MemoryFragmentRepository) CreateBatch(ctx context.Context, fragments []*entity.MemoryFragment) error {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.CreateBatch")
	defer span.End()

	if len(fragments) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(fragments).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create memory fragments: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取记忆片段
func (r *MemoryFragmentRepository) GetByID(ctx context.Context, id string) (*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var fragment entity.MemoryFragment
	if err := db.First(&fragment, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get memory fragment: %w", err)
	}
	return &fragment, nil
}

// Delete 删除记忆片段
func (r *MemoryFragmentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.MemoryFragment{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete memory fragment: %w", err)
	}
	return nil
}

// DeleteByChapter 删除章节全部记忆片段，无记录时返回 0 不报错
func (r *MemoryFragmentRepository) DeleteByChapter(ctx context.Context, projectID, chapterID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.DeleteByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ? AND chapter_id = ?", projectID, chapterID).
		Delete(&entity.MemoryFragment{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete memory fragments by chapter: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByProject 删除项目全部记忆片段
func (r *MemoryFragmentRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.MemoryFragment{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete memory fragments by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByChapter 获取章节全部记忆片段
func (r *MemoryFragmentRepository) ListByChapter(ctx context.Context, projectID, chapterID string) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListByChapter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	if err := db.Where("project_id = ? AND chapter_id = ?", projectID, chapterID).
		Order("created_at ASC").
		Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list memory fragments by chapter: %w", err)
	}
	return fragments, nil
}

// ListByProject 分页获取项目记忆片段
func (r *MemoryFragmentRepository) ListByProject(ctx context.Context, projectID string, memType entity.MemoryType, pagination repository.Pagination) (*repository.PagedResult[*entity.MemoryFragment], error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.MemoryFragment{}).Where("project_id = ?", projectID)
	if memType != "" {
		query = query.Where("memory_type = ?", memType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count memory fragments: %w", err)
	}

	var fragments []*entity.MemoryFragment
	if err := query.Order("story_timeline DESC, created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list memory fragments: %w", err)
	}

	return repository.NewPagedResult(fragments, total, pagination), nil
}

// ListByIDs 按 ID 集合获取记忆片段，结果保持入参顺序
func (r *MemoryFragmentRepository) ListByIDs(ctx context.Context, ids []string) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	if err := db.Where("id IN ?", ids).Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list memory fragments by ids: %w", err)
	}

	byID := make(map[string]*entity.MemoryFragment, len(fragments))
	for _, f := range fragments {
		byID[f.ID] = f
	}
	ordered := make([]*entity.MemoryFragment, 0, len(fragments))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}

// ListByVectorIDs 按向量 ID 集合获取记忆片段，结果保持入参顺序
func (r *MemoryFragmentRepository) ListByVectorIDs(ctx context.Context, projectID string, vectorIDs []string) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListByVectorIDs")
	defer span.End()

	if len(vectorIDs) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	if err := db.Where("project_id = ? AND vector_id IN ?", projectID, vectorIDs).Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list memory fragments by vector ids: %w", err)
	}

	byVectorID := make(map[string]*entity.MemoryFragment, len(fragments))
	for _, f := range fragments {
		byVectorID[f.VectorID] = f
	}
	ordered := make([]*entity.MemoryFragment, 0, len(fragments))
	for _, id := range vectorIDs {
		if f, ok := byVectorID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}

// ListRecent 按时间线倒序获取 beforeChapter 之前的记忆片段
func (r *MemoryFragmentRepository) ListRecent(ctx context.Context, projectID string, beforeChapter, limit int) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListRecent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	query := db.Where("project_id = ?", projectID)
	if beforeChapter > 0 {
		query = query.Where("story_timeline < ?", beforeChapter)
	}
	if err := query.Order("story_timeline DESC, importance DESC").
		Limit(limit).
		Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent memory fragments: %w", err)
	}
	return fragments, nil
}

// ListPlantedForeshadows 获取尚未回收的伏笔
func (r *MemoryFragmentRepository) ListPlantedForeshadows(ctx context.Context, projectID string, beforeChapter int) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListPlantedForeshadows")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	query := db.Where("project_id = ? AND is_foreshadow = ?", projectID, entity.ForeshadowPlanted)
	if beforeChapter > 0 {
		query = query.Where("story_timeline < ?", beforeChapter)
	}
	if err := query.Order("story_timeline ASC").
		Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list planted foreshadows: %w", err)
	}
	return fragments, nil
}

// ListLatestCharacterEvents 获取每个角色最近一条状态事件
// names 非空时只保留与之相关的角色
func (r *MemoryFragmentRepository) ListLatestCharacterEvents(ctx context.Context, projectID string, beforeChapter int, names []string) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListLatestCharacterEvents")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var events []*entity.MemoryFragment
	query := db.Where("project_id = ? AND memory_type = ?", projectID, entity.MemoryTypeCharacterEvent)
	if beforeChapter > 0 {
		query = query.Where("story_timeline < ?", beforeChapter)
	}
	if err := query.Order("story_timeline DESC, created_at DESC").
		Limit(200).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list character events: %w", err)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	// 倒序遍历，每个角色只保留最近一条
	seen := make(map[string]bool)
	var latest []*entity.MemoryFragment
	for _, ev := range events {
		for _, name := range ev.RelatedCharacters {
			if len(wanted) > 0 && !wanted[name] {
				continue
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			latest = append(latest, ev)
			break
		}
	}
	return latest, nil
}

// ListTopPlotPoints 获取最近 window 章内按重要度排序的情节点
func (r *MemoryFragmentRepository) ListTopPlotPoints(ctx context.Context, projectID string, beforeChapter, window, limit int) ([]*entity.MemoryFragment, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemoryFragmentRepository.ListTopPlotPoints")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var fragments []*entity.MemoryFragment
	query := db.Where("project_id = ? AND memory_type = ?", projectID, entity.MemoryTypePlotPoint)
	if beforeChapter > 0 {
		query = query.Where("story_timeline < ?", beforeChapter)
		if window > 0 {
			query = query.Where("story_timeline >= ?", beforeChapter-window)
		}
	}
	if err := query.Order("importance DESC, story_timeline DESC").
		Limit(limit).
		Find(&fragments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list top plot points: %w", err)
	}
	return fragments, nil
}
