// Package entity 定义领域实体
package entity

import (
	"time"
)

// GenerationType 生成类型
type GenerationType string

const (
	GenerationTypeWorld      GenerationType = "world"
	GenerationTypeCharacters GenerationType = "characters"
	GenerationTypeOutline    GenerationType = "outline"
	GenerationTypeChapter    GenerationType = "chapter"
	GenerationTypeAnalysis   GenerationType = "analysis"
)

// GenerationHistory 生成历史记录
// Prompt 与 Result 均在写入前截断，避免历史表膨胀
type GenerationHistory struct {
	ID               string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID         string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ProjectID        string         `json:"project_id" gorm:"type:uuid;index;not null"`
	GenerationType   GenerationType `json:"generation_type" gorm:"type:varchar(50);index;not null"`
	Prompt           string         `json:"prompt,omitempty" gorm:"type:text"`
	Result           string         `json:"result,omitempty" gorm:"type:text"`
	Provider         string         `json:"provider,omitempty" gorm:"type:varchar(50)"`
	Model            string         `json:"model,omitempty" gorm:"type:varchar(100)"`
	PromptTokens     int            `json:"prompt_tokens,omitempty"`
	CompletionTokens int            `json:"completion_tokens,omitempty"`
	Status           string         `json:"status" gorm:"type:varchar(20);default:'success'"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (GenerationHistory) TableName() string {
	return "generation_histories"
}

// NewGenerationHistory 创建历史记录，prompt/result 截断到 limit 个 rune
func NewGenerationHistory(tenantID, projectID string, genType GenerationType, prompt, result string, limit int) *GenerationHistory {
	return &GenerationHistory{
		TenantID:       tenantID,
		ProjectID:      projectID,
		GenerationType: genType,
		Prompt:         truncateRunes(prompt, limit),
		Result:         truncateRunes(result, limit),
		Status:         "success",
		CreatedAt:      time.Now(),
	}
}
