// Package entity 定义领域实体
package entity

import (
	"time"
)

// TenantStatus 租户状态
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// TenantSettings 租户级 LLM 偏好设置
type TenantSettings struct {
	DefaultProvider    string  `json:"default_provider,omitempty"`
	DefaultModel       string  `json:"default_model,omitempty"`
	DefaultTemperature float64 `json:"default_temperature,omitempty"`
	DefaultMaxTokens   int     `json:"default_max_tokens,omitempty"`
}

// Tenant 租户实体
// SeededAt 记录词表与预置风格的播种完成时间，registry 以此判断是否需要初始化
type Tenant struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string          `json:"name" gorm:"type:varchar(255);not null"`
	Slug      string          `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Settings  *TenantSettings `json:"settings,omitempty" gorm:"type:jsonb;serializer:json"`
	Status    TenantStatus    `json:"status" gorm:"type:varchar(20);default:'active'"`
	SeededAt  *time.Time      `json:"seeded_at,omitempty"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant 创建新租户
func NewTenant(name, slug string) *Tenant {
	now := time.Now()
	return &Tenant{
		Name:      name,
		Slug:      slug,
		Status:    TenantStatusActive,
		Settings:  &TenantSettings{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive 检查租户是否活跃
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// MarkSeeded 记录播种完成
func (t *Tenant) MarkSeeded() {
	now := time.Now()
	t.SeededAt = &now
	t.UpdatedAt = now
}
