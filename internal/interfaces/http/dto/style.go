// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// CreateStyleRequest 创建项目写作风格请求
type CreateStyleRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description,omitempty" binding:"max=2000"`
	Tone        string `json:"tone,omitempty" binding:"max=100"`
	PromptHint  string `json:"prompt_hint,omitempty" binding:"max=5000"`
	OrderIndex  int    `json:"order_index" binding:"gte=0"`
}

// UpdateStyleRequest 更新写作风格请求；预置风格对租户只读
type UpdateStyleRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,max=100"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=2000"`
	Tone        *string `json:"tone,omitempty" binding:"omitempty,max=100"`
	PromptHint  *string `json:"prompt_hint,omitempty" binding:"omitempty,max=5000"`
	OrderIndex  *int    `json:"order_index,omitempty" binding:"omitempty,gte=0"`
}

// SetDefaultStyleRequest 设置项目默认风格请求
type SetDefaultStyleRequest struct {
	StyleID string `json:"style_id" binding:"required,uuid"`
}

// StyleResponse 写作风格响应
type StyleResponse struct {
	ID          string    `json:"id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tone        string    `json:"tone,omitempty"`
	PromptHint  string    `json:"prompt_hint,omitempty"`
	OrderIndex  int       `json:"order_index"`
	IsPreset    bool      `json:"is_preset"`
	IsGlobal    bool      `json:"is_global"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StyleListResponse 风格列表响应，DefaultStyleID 为项目当前默认风格
type StyleListResponse struct {
	Styles         []*StyleResponse `json:"styles"`
	DefaultStyleID string           `json:"default_style_id,omitempty"`
}

// ToStyleResponse 将领域实体转换为响应 DTO
func ToStyleResponse(s *entity.WritingStyle) *StyleResponse {
	if s == nil {
		return nil
	}
	return &StyleResponse{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		Name:        s.Name,
		Description: s.Description,
		Tone:        s.Tone,
		PromptHint:  s.PromptHint,
		OrderIndex:  s.OrderIndex,
		IsPreset:    s.IsPreset,
		IsGlobal:    s.IsGlobal(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// ToStyleListResponse 将领域实体列表转换为响应 DTO
func ToStyleListResponse(styles []*entity.WritingStyle, defaultStyleID string) *StyleListResponse {
	resp := &StyleListResponse{
		Styles:         make([]*StyleResponse, 0, len(styles)),
		DefaultStyleID: defaultStyleID,
	}
	for _, s := range styles {
		resp.Styles = append(resp.Styles, ToStyleResponse(s))
	}
	return resp
}

// ApplyToStyle 将更新请求应用到风格实体
func (r *UpdateStyleRequest) ApplyToStyle(s *entity.WritingStyle) {
	if r.Name != nil {
		s.Name = *r.Name
	}
	if r.Description != nil {
		s.Description = *r.Description
	}
	if r.Tone != nil {
		s.Tone = *r.Tone
	}
	if r.PromptHint != nil {
		s.PromptHint = *r.PromptHint
	}
	if r.OrderIndex != nil {
		s.OrderIndex = *r.OrderIndex
	}
	s.UpdatedAt = time.Now()
}
