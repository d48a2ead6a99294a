// Package entity 定义领域实体
package entity

import (
	"time"
)

// RelationshipCategory 关系类型分类
type RelationshipCategory string

const (
	RelationshipCategoryFamily       RelationshipCategory = "family"
	RelationshipCategorySocial       RelationshipCategory = "social"
	RelationshipCategoryProfessional RelationshipCategory = "professional"
	RelationshipCategoryHostile      RelationshipCategory = "hostile"
)

// RelationshipType 关系类型词表
// 每个租户初始化时播种一份内置词表，播种幂等
type RelationshipType struct {
	ID          string               `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string               `json:"tenant_id" gorm:"type:uuid;index:idx_reltypes_tenant_name,unique;not null"`
	Name        string               `json:"name" gorm:"type:varchar(100);index:idx_reltypes_tenant_name,unique;not null"`
	ReverseName string               `json:"reverse_name,omitempty" gorm:"type:varchar(100)"`
	Category    RelationshipCategory `json:"category" gorm:"type:varchar(50)"`
	IntimacyMin int                  `json:"intimacy_min" gorm:"default:0"`
	IntimacyMax int                  `json:"intimacy_max" gorm:"default:100"`
	Icon        string               `json:"icon,omitempty" gorm:"type:varchar(50)"`
	IsBuiltin   bool                 `json:"is_builtin" gorm:"default:false"`
	CreatedAt   time.Time            `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (RelationshipType) TableName() string {
	return "relationship_types"
}

// RelationshipSource 关系来源
type RelationshipSource string

const (
	RelationshipSourceAI     RelationshipSource = "ai"
	RelationshipSourceManual RelationshipSource = "manual"
)

// CharacterRelationship 角色关系（有向边）
// (project, from, to) 写入时去重，后写覆盖
type CharacterRelationship struct {
	ID                 string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID          string             `json:"project_id" gorm:"type:uuid;index;not null"`
	FromCharacterID    string             `json:"from_character_id" gorm:"type:uuid;index;not null"`
	ToCharacterID      string             `json:"to_character_id" gorm:"type:uuid;index;not null"`
	RelationshipTypeID *string            `json:"relationship_type_id,omitempty" gorm:"type:uuid"`
	TypeName           string             `json:"type_name,omitempty" gorm:"type:varchar(100)"`
	Description        string             `json:"description,omitempty" gorm:"type:text"`
	Intimacy           int                `json:"intimacy" gorm:"default:50"`
	Source             RelationshipSource `json:"source" gorm:"type:varchar(20);default:'manual'"`
	Status             string             `json:"status" gorm:"type:varchar(50);default:'active'"`
	CreatedAt          time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CharacterRelationship) TableName() string {
	return "character_relationships"
}
