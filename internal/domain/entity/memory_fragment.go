// Package entity 定义领域实体
package entity

import (
	"time"
)

// MemoryType 记忆片段类型
type MemoryType string

const (
	MemoryTypeChapterSummary MemoryType = "chapter_summary"
	MemoryTypeHook           MemoryType = "hook"
	MemoryTypeForeshadow     MemoryType = "foreshadow"
	MemoryTypePlotPoint      MemoryType = "plot_point"
	MemoryTypeCharacterEvent MemoryType = "character_event"
)

// 伏笔状态：0 非伏笔，1 已埋设，2 已回收
const (
	ForeshadowNone     = 0
	ForeshadowPlanted  = 1
	ForeshadowResolved = 2
)

// MemoryFragment 故事记忆片段
// TextPosition/TextLength 为正文中的定位信息，定位失败时为 (-1, 0)
type MemoryFragment struct {
	ID                string     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID          string     `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ProjectID         string     `json:"project_id" gorm:"type:uuid;index;not null"`
	ChapterID         *string    `json:"chapter_id,omitempty" gorm:"type:uuid;index"`
	MemoryType        MemoryType `json:"memory_type" gorm:"type:varchar(50);index;not null"`
	Title             string     `json:"title,omitempty" gorm:"type:varchar(255)"`
	Content           string     `json:"content" gorm:"type:text;not null"`
	Importance        float64    `json:"importance" gorm:"default:0.5"`
	Tags              []string   `json:"tags,omitempty" gorm:"type:jsonb;serializer:json"`
	RelatedCharacters []string   `json:"related_characters,omitempty" gorm:"type:jsonb;serializer:json"`
	IsForeshadow      int        `json:"is_foreshadow" gorm:"default:0"`
	ReferenceChapter  int        `json:"reference_chapter,omitempty"`
	StoryTimeline     int        `json:"story_timeline" gorm:"index;default:0"`
	TextPosition      int        `json:"text_position" gorm:"default:-1"`
	TextLength        int        `json:"text_length" gorm:"default:0"`
	VectorID          string     `json:"vector_id,omitempty" gorm:"type:varchar(128)"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (MemoryFragment) TableName() string {
	return "memory_fragments"
}

// IsPlantedForeshadow 是否为尚未回收的伏笔
func (m *MemoryFragment) IsPlantedForeshadow() bool {
	return m.IsForeshadow == ForeshadowPlanted
}

// ClampImportance 将重要度限制在 [0,1]
func (m *MemoryFragment) ClampImportance() {
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}
}
