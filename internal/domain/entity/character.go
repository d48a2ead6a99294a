// Package entity 定义领域实体
package entity

import (
	"time"
)

// CharacterType 角色定位
type CharacterType string

const (
	CharacterTypeProtagonist CharacterType = "protagonist"
	CharacterTypeAntagonist  CharacterType = "antagonist"
	CharacterTypeSupporting  CharacterType = "supporting"
)

// Character 角色实体
// IsOrganization 为 true 时该行代表一个组织，组织的扩展属性存于 Organization 表
type Character struct {
	ID               string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID        string         `json:"project_id" gorm:"type:uuid;index;not null"`
	Name             string         `json:"name" gorm:"type:varchar(255);not null"`
	CharacterType    CharacterType  `json:"character_type" gorm:"type:varchar(50);default:'supporting'"`
	Age              int            `json:"age,omitempty"`
	Gender           string         `json:"gender,omitempty" gorm:"type:varchar(50)"`
	Personality      string         `json:"personality,omitempty" gorm:"type:text"`
	Background       string         `json:"background,omitempty" gorm:"type:text"`
	Appearance       string         `json:"appearance,omitempty" gorm:"type:text"`
	Motivation       string         `json:"motivation,omitempty" gorm:"type:text"`
	Relationships    string         `json:"relationships,omitempty" gorm:"type:text"`
	IsOrganization   bool           `json:"is_organization" gorm:"default:false"`
	OrganizationType string         `json:"organization_type,omitempty" gorm:"type:varchar(100)"`
	Status           string         `json:"status" gorm:"type:varchar(50);default:'active'"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Character) TableName() string {
	return "characters"
}

// NewCharacter 创建角色
func NewCharacter(projectID, name string, charType CharacterType) *Character {
	now := time.Now()
	return &Character{
		ProjectID:     projectID,
		Name:          name,
		CharacterType: charType,
		Status:        "active",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
