// Package entity 定义领域实体
package entity

import (
	"time"
)

// OutlineStructure 大纲结构化内容
type OutlineStructure struct {
	Title              string   `json:"title,omitempty"`
	Summary            string   `json:"summary,omitempty"`
	Content            string   `json:"content,omitempty"`
	KeyEvents          []string `json:"key_events,omitempty"`
	CharactersInvolved []string `json:"characters_involved,omitempty"`
}

// Outline 大纲节点实体
// OrderIndex 在项目内从 1 开始连续递增，重排/删除后保持连续
type Outline struct {
	ID         string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID  string            `json:"project_id" gorm:"type:uuid;index:idx_outlines_project_order,unique;not null"`
	OrderIndex int               `json:"order_index" gorm:"index:idx_outlines_project_order,unique;not null"`
	Title      string            `json:"title" gorm:"type:varchar(255)"`
	Content    string            `json:"content,omitempty" gorm:"type:text"`
	Structure  *OutlineStructure `json:"structure,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt  time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Outline) TableName() string {
	return "outlines"
}

// NewOutline 创建大纲节点
func NewOutline(projectID string, orderIndex int, title, content string) *Outline {
	now := time.Now()
	return &Outline{
		ProjectID:  projectID,
		OrderIndex: orderIndex,
		Title:      title,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SummaryPrefix 返回用于配对章节摘要的内容前缀
func (o *Outline) SummaryPrefix(maxRunes int) string {
	runes := []rune(o.Content)
	if len(runes) <= maxRunes {
		return o.Content
	}
	return string(runes[:maxRunes])
}
