// Package entity 定义领域实体
package entity

import (
	"time"
)

// Organization 组织实体
// CharacterID 指向代表该组织的角色行（is_organization=true）
type Organization struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID        string    `json:"project_id" gorm:"type:uuid;index;not null"`
	CharacterID      string    `json:"character_id" gorm:"type:uuid;index;not null"`
	Name             string    `json:"name" gorm:"type:varchar(255);not null"`
	Description      string    `json:"description,omitempty" gorm:"type:text"`
	OrganizationType string    `json:"organization_type,omitempty" gorm:"type:varchar(100)"`
	MemberCount      int       `json:"member_count" gorm:"default:0"`
	PowerLevel       int       `json:"power_level" gorm:"default:50"`
	Location         string    `json:"location,omitempty" gorm:"type:varchar(255)"`
	Motto            string    `json:"motto,omitempty" gorm:"type:varchar(255)"`
	Color            string    `json:"color,omitempty" gorm:"type:varchar(50)"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Organization) TableName() string {
	return "organizations"
}

// OrganizationMember 组织成员关系
type OrganizationMember struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID string    `json:"organization_id" gorm:"type:uuid;index:idx_org_members_org_char,unique;not null"`
	CharacterID    string    `json:"character_id" gorm:"type:uuid;index:idx_org_members_org_char,unique;not null"`
	Position       string    `json:"position" gorm:"type:varchar(100);default:'成员'"`
	Rank           int       `json:"rank" gorm:"default:0"`
	Loyalty        int       `json:"loyalty" gorm:"default:50"`
	Status         string    `json:"status" gorm:"type:varchar(50);default:'active'"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (OrganizationMember) TableName() string {
	return "organization_members"
}
