// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"novelforge-api/internal/domain/entity"
)

// ChapterRepository 章节仓储实现
type ChapterRepository struct {
	client *Client
}

// NewChapterRepository 创建章节仓储
func NewChapterRepository(client *Client) *ChapterRepository {
	return &ChapterRepository{client: client}
}

// Create 创建章节
func (r *ChapterRepository) Create(ctx context.Context, chapter *entity.Chapter) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(chapter).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chapter: %w", err)
	}
	return nil
}

// CreateBatch 批量创建章节
func (r *ChapterRepository) CreateBatch(ctx context.Context, chapters []*entity.Chapter) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.CreateBatch")
	defer span.End()

	if len(chapters) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(chapters).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chapters: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取章节
func (r *ChapterRepository) GetByID(ctx context.Context, id string) (*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapter entity.Chapter
	if err := db.First(&chapter, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return &chapter, nil
}

// GetByProjectAndNumber 根据项目和章节号获取章节
func (r *ChapterRepository) GetByProjectAndNumber(ctx context.Context, projectID string, number int) (*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.GetByProjectAndNumber")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapter entity.Chapter
	if err := db.Where("project_id = ? AND chapter_number = ?", projectID, number).
		First(&chapter).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chapter by number: %w", err)
	}
	return &chapter, nil
}

// Update 更新章节
func (r *ChapterRepository) Update(ctx context.Context, chapter *entity.Chapter) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(chapter).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update chapter: %w", err)
	}
	return nil
}

// Delete 删除章节
func (r *ChapterRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Chapter{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chapter: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部章节
func (r *ChapterRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("project_id = ?", projectID).Delete(&entity.Chapter{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete chapters by project: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByProject 按章节号升序获取项目全部章节
func (r *ChapterRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapters []*entity.Chapter
	if err := db.Where("project_id = ?", projectID).
		Order("chapter_number ASC").
		Find(&chapters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return chapters, nil
}

// ListMissingPrerequisites 返回指定章节号之前内容为空的章节号列表
// 既包括正文为空的已存在章节，也包括没有章节行的大纲序号
func (r *ChapterRepository) ListMissingPrerequisites(ctx context.Context, projectID string, beforeNumber int) ([]int, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.ListMissingPrerequisites")
	defer span.End()

	db := getDB(ctx, r.client.db)
	type row struct {
		ChapterNumber int
		HasContent    bool
	}
	var rows []row
	if err := db.Model(&entity.Chapter{}).
		Select("chapter_number, (content IS NOT NULL AND content <> '') AS has_content").
		Where("project_id = ? AND chapter_number < ?", projectID, beforeNumber).
		Order("chapter_number ASC").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list prerequisites: %w", err)
	}

	written := make(map[int]bool, len(rows))
	for _, rw := range rows {
		written[rw.ChapterNumber] = rw.HasContent
	}

	var missing []int
	for n := 1; n < beforeNumber; n++ {
		if !written[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

// ListRecentWithContent 按章节号倒序获取最近有正文的章节
func (r *ChapterRepository) ListRecentWithContent(ctx context.Context, projectID string, beforeNumber, limit int) ([]*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.ListRecentWithContent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chapters []*entity.Chapter
	query := db.Where("project_id = ? AND content IS NOT NULL AND content <> ''", projectID)
	if beforeNumber > 0 {
		query = query.Where("chapter_number < ?", beforeNumber)
	}
	if err := query.Order("chapter_number DESC").
		Limit(limit).
		Find(&chapters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent chapters: %w", err)
	}
	return chapters, nil
}

// ShiftNumbersAfter 将章节号大于 after 的章节整体平移 delta
// delta 为正时按倒序更新避免唯一索引冲突
func (r *ChapterRepository) ShiftNumbersAfter(ctx context.Context, projectID string, after, delta int) error {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.ShiftNumbersAfter")
	defer span.End()

	if delta == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	order := "chapter_number ASC"
	if delta > 0 {
		order = "chapter_number DESC"
	}

	var ids []string
	if err := db.Model(&entity.Chapter{}).
		Where("project_id = ? AND chapter_number > ?", projectID, after).
		Order(order).
		Pluck("id", &ids).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to collect chapters for shift: %w", err)
	}

	for _, id := range ids {
		if err := db.Model(&entity.Chapter{}).
			Where("id = ?", id).
			Update("chapter_number", gorm.Expr("chapter_number + ?", delta)).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to shift chapter number: %w", err)
		}
	}
	return nil
}

// CountByProject 统计项目章节数
func (r *ChapterRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.Chapter{}).
		Where("project_id = ?", projectID).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count chapters: %w", err)
	}
	return count, nil
}
