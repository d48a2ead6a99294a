// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"sort"
	"time"

	"novelforge-api/internal/application/tool"
	"novelforge-api/internal/domain/entity"
	apperrors "novelforge-api/pkg/errors"
)

// CreatePluginRequest 注册工具插件请求
type CreatePluginRequest struct {
	PluginName  string            `json:"plugin_name" binding:"required,max=100"`
	DisplayName string            `json:"display_name,omitempty" binding:"max=255"`
	Description string            `json:"description,omitempty" binding:"max=2000"`
	Transport   string            `json:"transport,omitempty" binding:"omitempty,oneof=http stdio"`
	URL         string            `json:"url,omitempty" binding:"omitempty,url,max=500"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     string            `json:"command,omitempty" binding:"max=255"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// SimpleCreatePluginRequest 通过标准 mcpServers 配置 JSON 快捷注册插件
type SimpleCreatePluginRequest struct {
	ConfigJSON string `json:"config_json" binding:"required"`
	Enabled    bool   `json:"enabled"`
}

// mcpServerEntry mcpServers 配置中的单个服务端点
type mcpServerEntry struct {
	Type    string            `json:"type,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ParsePlugin 解析 mcpServers 配置并转换为领域实体。
// 多个条目时取键名最小的一个，插件名取自配置键。
func (r *SimpleCreatePluginRequest) ParsePlugin(tenantID string) (*entity.ToolPlugin, error) {
	var cfg struct {
		McpServers map[string]mcpServerEntry `json:"mcpServers"`
	}
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("配置 JSON 解析失败").WithError(err)
	}
	if len(cfg.McpServers) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("配置 JSON 必须包含非空 mcpServers 字段")
	}

	names := make([]string, 0, len(cfg.McpServers))
	for name := range cfg.McpServers {
		names = append(names, name)
	}
	sort.Strings(names)
	name := names[0]
	server := cfg.McpServers[name]

	transport := entity.PluginTransport(server.Type)
	if transport == "" {
		transport = entity.PluginTransportHTTP
	}
	switch transport {
	case entity.PluginTransportHTTP:
		if server.URL == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("http 类型插件必须提供 url 字段")
		}
	case entity.PluginTransportStdio:
		if server.Command == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("stdio 类型插件必须提供 command 字段")
		}
	default:
		return nil, apperrors.ErrInvalidParam.WithDetail("不支持的服务器类型: " + server.Type)
	}

	return &entity.ToolPlugin{
		TenantID:    tenantID,
		PluginName:  name,
		DisplayName: name,
		Transport:   transport,
		URL:         server.URL,
		Headers:     server.Headers,
		Command:     server.Command,
		Args:        server.Args,
		Env:         server.Env,
		Enabled:     r.Enabled,
		Status:      entity.PluginStatusInactive,
	}, nil
}

// UpdatePluginRequest 更新插件请求
type UpdatePluginRequest struct {
	DisplayName *string            `json:"display_name,omitempty" binding:"omitempty,max=255"`
	Description *string            `json:"description,omitempty" binding:"omitempty,max=2000"`
	URL         *string            `json:"url,omitempty" binding:"omitempty,url,max=500"`
	Headers     *map[string]string `json:"headers,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

// TestPluginRequest 插件工具试调请求
type TestPluginRequest struct {
	ToolName  string         `json:"tool_name" binding:"required,max=100"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// TestPluginResponse 试调结果
type TestPluginResponse struct {
	Result     string `json:"result"`
	DurationMS int64  `json:"duration_ms"`
}

// PluginResponse 插件响应
type PluginResponse struct {
	ID          string                  `json:"id"`
	PluginName  string                  `json:"plugin_name"`
	DisplayName string                  `json:"display_name,omitempty"`
	Description string                  `json:"description,omitempty"`
	Transport   string                  `json:"transport"`
	URL         string                  `json:"url,omitempty"`
	Enabled     bool                    `json:"enabled"`
	Status      string                  `json:"status"`
	LastError   string                  `json:"last_error,omitempty"`
	Tools       []entity.ToolDescriptor `json:"tools,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// PluginListResponse 插件列表响应
type PluginListResponse struct {
	Plugins []*PluginResponse `json:"plugins"`
}

// PluginToolsResponse 插件工具清单响应
type PluginToolsResponse struct {
	PluginName string                  `json:"plugin_name"`
	Tools      []entity.ToolDescriptor `json:"tools"`
}

// PluginHealthResponse 插件健康评估响应
type PluginHealthResponse struct {
	Plugins []*tool.PluginHealth `json:"plugins"`
}

// PluginMetricsResponse 插件调用指标响应
type PluginMetricsResponse struct {
	Plugins   []*tool.PluginHealth `json:"plugins"`
	Timestamp time.Time            `json:"timestamp"`
}

// CacheStatsResponse 工具缓存统计响应
type CacheStatsResponse struct {
	CacheStats *tool.CacheStats `json:"cache_stats"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ClearCacheResponse 缓存清理结果响应
type ClearCacheResponse struct {
	Cleared int    `json:"cleared"`
	Message string `json:"message"`
}

// ToPluginResponse 将领域实体转换为响应 DTO；Headers/Env 不回显
func ToPluginResponse(p *entity.ToolPlugin) *PluginResponse {
	if p == nil {
		return nil
	}
	return &PluginResponse{
		ID:          p.ID,
		PluginName:  p.PluginName,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Transport:   string(p.Transport),
		URL:         p.URL,
		Enabled:     p.Enabled,
		Status:      string(p.Status),
		LastError:   p.LastError,
		Tools:       p.Tools,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ToPluginListResponse 将领域实体列表转换为响应 DTO
func ToPluginListResponse(plugins []*entity.ToolPlugin) *PluginListResponse {
	resp := &PluginListResponse{
		Plugins: make([]*PluginResponse, 0, len(plugins)),
	}
	for _, p := range plugins {
		resp.Plugins = append(resp.Plugins, ToPluginResponse(p))
	}
	return resp
}

// ToPlugin 将注册请求转换为领域实体
func (r *CreatePluginRequest) ToPlugin(tenantID string) *entity.ToolPlugin {
	transport := entity.PluginTransport(r.Transport)
	if transport == "" {
		transport = entity.PluginTransportHTTP
	}
	return &entity.ToolPlugin{
		TenantID:    tenantID,
		PluginName:  r.PluginName,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Transport:   transport,
		URL:         r.URL,
		Headers:     r.Headers,
		Command:     r.Command,
		Args:        r.Args,
		Env:         r.Env,
		Enabled:     r.Enabled,
		Status:      entity.PluginStatusInactive,
	}
}

// ApplyToPlugin 将更新请求应用到插件实体
func (r *UpdatePluginRequest) ApplyToPlugin(p *entity.ToolPlugin) {
	if r.DisplayName != nil {
		p.DisplayName = *r.DisplayName
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.URL != nil {
		p.URL = *r.URL
	}
	if r.Headers != nil {
		p.Headers = *r.Headers
	}
	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
	p.UpdatedAt = time.Now()
}
