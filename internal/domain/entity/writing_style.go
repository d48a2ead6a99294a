// Package entity 定义领域实体
package entity

import (
	"time"
)

// WritingStyle 写作风格
// ProjectID 为空表示租户级全局预置风格，预置风格对租户只读
type WritingStyle struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ProjectID   *string   `json:"project_id,omitempty" gorm:"type:uuid;index"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	Tone        string    `json:"tone,omitempty" gorm:"type:varchar(100)"`
	PromptHint  string    `json:"prompt_hint,omitempty" gorm:"type:text"`
	OrderIndex  int       `json:"order_index" gorm:"default:0"`
	IsPreset    bool      `json:"is_preset" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (WritingStyle) TableName() string {
	return "writing_styles"
}

// IsGlobal 是否为全局预置风格
func (s *WritingStyle) IsGlobal() bool {
	return s.ProjectID == nil
}

// ProjectDefaultStyle 项目默认风格，每个项目至多一条
type ProjectDefaultStyle struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID string    `json:"project_id" gorm:"type:uuid;uniqueIndex;not null"`
	StyleID   string    `json:"style_id" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ProjectDefaultStyle) TableName() string {
	return "project_default_styles"
}
