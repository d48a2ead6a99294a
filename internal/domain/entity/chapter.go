// Package entity 定义领域实体
package entity

import (
	"time"
	"unicode/utf8"
)

// ChapterStatus 章节状态
type ChapterStatus string

const (
	ChapterStatusDraft      ChapterStatus = "draft"
	ChapterStatusGenerating ChapterStatus = "generating"
	ChapterStatusCompleted  ChapterStatus = "completed"
	ChapterStatusFailed     ChapterStatus = "failed"
)

// GenerationMetadata 生成元数据
type GenerationMetadata struct {
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	GeneratedAt      string  `json:"generated_at,omitempty"`
}

// Chapter 章节实体
// ChapterNumber 与同项目大纲的 OrderIndex 一一对应
type Chapter struct {
	ID                 string              `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID          string              `json:"project_id" gorm:"type:uuid;index:idx_chapters_project_number,unique;not null"`
	ChapterNumber      int                 `json:"chapter_number" gorm:"index:idx_chapters_project_number,unique;not null"`
	Title              string              `json:"title,omitempty" gorm:"type:varchar(255)"`
	Summary            string              `json:"summary,omitempty" gorm:"type:text"`
	Content            string              `json:"content,omitempty" gorm:"type:text"`
	WordCount          int                 `json:"word_count" gorm:"default:0"`
	Status             ChapterStatus       `json:"status" gorm:"type:varchar(50);default:'draft'"`
	GenerationMetadata *GenerationMetadata `json:"generation_metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt          time.Time           `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time           `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Chapter) TableName() string {
	return "chapters"
}

// NewChapter 创建新章节（草稿）
func NewChapter(projectID string, number int, title, summary string) *Chapter {
	now := time.Now()
	return &Chapter{
		ProjectID:     projectID,
		ChapterNumber: number,
		Title:         title,
		Summary:       summary,
		Status:        ChapterStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SetContent 设置章节内容并按 rune 统计字数
func (c *Chapter) SetContent(content string) {
	c.Content = content
	c.WordCount = utf8.RuneCountInString(content)
	c.UpdatedAt = time.Now()
}

// HasContent 章节是否已有正文
func (c *Chapter) HasContent() bool {
	return c.Content != ""
}

// MarkCompleted 标记生成完成
func (c *Chapter) MarkCompleted() {
	c.Status = ChapterStatusCompleted
	c.UpdatedAt = time.Now()
}
