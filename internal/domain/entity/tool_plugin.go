// Package entity 定义领域实体
package entity

import (
	"time"
)

// PluginTransport 插件传输方式
type PluginTransport string

const (
	PluginTransportHTTP  PluginTransport = "http"
	PluginTransportStdio PluginTransport = "stdio"
)

// PluginStatus 插件运行状态
type PluginStatus string

const (
	PluginStatusInactive PluginStatus = "inactive"
	PluginStatusActive   PluginStatus = "active"
	PluginStatusError    PluginStatus = "error"
)

// ToolDescriptor 工具描述（从插件端点拉取后缓存）
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolPlugin 外部工具插件端点
// (tenant, plugin_name) 唯一
type ToolPlugin struct {
	ID          string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string            `json:"tenant_id" gorm:"type:uuid;index:idx_plugins_tenant_name,unique;not null"`
	PluginName  string            `json:"plugin_name" gorm:"type:varchar(100);index:idx_plugins_tenant_name,unique;not null"`
	DisplayName string            `json:"display_name,omitempty" gorm:"type:varchar(255)"`
	Description string            `json:"description,omitempty" gorm:"type:text"`
	Transport   PluginTransport   `json:"transport" gorm:"type:varchar(20);default:'http'"`
	URL         string            `json:"url,omitempty" gorm:"type:varchar(500)"`
	Headers     map[string]string `json:"headers,omitempty" gorm:"type:jsonb;serializer:json"`
	Command     string            `json:"command,omitempty" gorm:"type:varchar(255)"`
	Args        []string          `json:"args,omitempty" gorm:"type:jsonb;serializer:json"`
	Env         map[string]string `json:"env,omitempty" gorm:"type:jsonb;serializer:json"`
	Enabled     bool              `json:"enabled" gorm:"default:false"`
	Status      PluginStatus      `json:"status" gorm:"type:varchar(20);default:'inactive'"`
	LastError   string            `json:"last_error,omitempty" gorm:"type:varchar(500)"`
	Tools       []ToolDescriptor  `json:"tools,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ToolPlugin) TableName() string {
	return "tool_plugins"
}

// MarkActive 标记插件加载成功
func (p *ToolPlugin) MarkActive() {
	p.Status = PluginStatusActive
	p.LastError = ""
	p.UpdatedAt = time.Now()
}

// MarkError 标记插件加载失败
func (p *ToolPlugin) MarkError(message string) {
	p.Status = PluginStatusError
	p.LastError = truncateRunes(message, 500)
	p.UpdatedAt = time.Now()
}
