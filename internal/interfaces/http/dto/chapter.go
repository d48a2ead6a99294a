// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// CreateChapterRequest 创建章节请求
// ChapterNumber 为 0 时追加到当前最大章节号之后
type CreateChapterRequest struct {
	ChapterNumber int    `json:"chapter_number" binding:"gte=0"`
	Title         string `json:"title" binding:"max=255"`
	Summary       string `json:"summary" binding:"max=5000"`
	Content       string `json:"content"`
}

// UpdateChapterRequest 更新章节请求
type UpdateChapterRequest struct {
	Title   *string `json:"title,omitempty" binding:"omitempty,max=255"`
	Summary *string `json:"summary,omitempty" binding:"omitempty,max=5000"`
	Content *string `json:"content,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// ChapterResponse 章节响应
type ChapterResponse struct {
	ID                 string                     `json:"id"`
	ProjectID          string                     `json:"project_id"`
	ChapterNumber      int                        `json:"chapter_number"`
	Title              string                     `json:"title,omitempty"`
	Summary            string                     `json:"summary,omitempty"`
	Content            string                     `json:"content,omitempty"`
	WordCount          int                        `json:"word_count"`
	Status             string                     `json:"status"`
	GenerationMetadata *entity.GenerationMetadata `json:"generation_metadata,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// ChapterListItem 列表项，不携带正文
type ChapterListItem struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	ChapterNumber int       `json:"chapter_number"`
	Title         string    `json:"title,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	WordCount     int       `json:"word_count"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChapterListResponse 章节列表响应
type ChapterListResponse struct {
	Chapters []*ChapterListItem `json:"chapters"`
}

// CanGenerateResponse 章节生成前置探测响应
type CanGenerateResponse struct {
	CanGenerate     bool   `json:"can_generate"`
	MissingChapters []int  `json:"missing_chapters,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// ToChapterResponse 将领域实体转换为响应 DTO
func ToChapterResponse(ch *entity.Chapter) *ChapterResponse {
	if ch == nil {
		return nil
	}
	return &ChapterResponse{
		ID:                 ch.ID,
		ProjectID:          ch.ProjectID,
		ChapterNumber:      ch.ChapterNumber,
		Title:              ch.Title,
		Summary:            ch.Summary,
		Content:            ch.Content,
		WordCount:          ch.WordCount,
		Status:             string(ch.Status),
		GenerationMetadata: ch.GenerationMetadata,
		CreatedAt:          ch.CreatedAt,
		UpdatedAt:          ch.UpdatedAt,
	}
}

// ToChapterListResponse 将领域实体列表转换为响应 DTO
func ToChapterListResponse(chapters []*entity.Chapter) *ChapterListResponse {
	resp := &ChapterListResponse{
		Chapters: make([]*ChapterListItem, 0, len(chapters)),
	}
	for _, ch := range chapters {
		resp.Chapters = append(resp.Chapters, &ChapterListItem{
			ID:            ch.ID,
			ProjectID:     ch.ProjectID,
			ChapterNumber: ch.ChapterNumber,
			Title:         ch.Title,
			Summary:       ch.Summary,
			WordCount:     ch.WordCount,
			Status:        string(ch.Status),
			UpdatedAt:     ch.UpdatedAt,
		})
	}
	return resp
}

// ApplyToChapter 将更新请求应用到章节实体
func (r *UpdateChapterRequest) ApplyToChapter(ch *entity.Chapter) {
	if r.Title != nil {
		ch.Title = *r.Title
	}
	if r.Summary != nil {
		ch.Summary = *r.Summary
	}
	if r.Content != nil {
		ch.SetContent(*r.Content)
	}
	if r.Status != nil {
		ch.Status = entity.ChapterStatus(*r.Status)
	}
	ch.UpdatedAt = time.Now()
}
