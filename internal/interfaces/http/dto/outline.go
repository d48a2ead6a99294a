// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// CreateOutlineRequest 创建大纲节点请求
// OrderIndex 为 0 时追加到当前最大序号之后
type CreateOutlineRequest struct {
	OrderIndex int      `json:"order_index" binding:"gte=0"`
	Title      string   `json:"title" binding:"max=255"`
	Content    string   `json:"content"`
	KeyEvents  []string `json:"key_events,omitempty"`
	Characters []string `json:"characters_involved,omitempty"`
}

// UpdateOutlineRequest 更新大纲节点请求
type UpdateOutlineRequest struct {
	Title      *string   `json:"title,omitempty" binding:"omitempty,max=255"`
	Content    *string   `json:"content,omitempty"`
	KeyEvents  *[]string `json:"key_events,omitempty"`
	Characters *[]string `json:"characters_involved,omitempty"`
}

// ReorderOutlinesRequest 大纲重排请求，orders 必须覆盖项目全部节点
type ReorderOutlinesRequest struct {
	Orders []OutlineOrder `json:"orders" binding:"required,min=1,dive"`
}

// OutlineOrder 单个节点的目标序号
type OutlineOrder struct {
	OutlineID  string `json:"outline_id" binding:"required"`
	OrderIndex int    `json:"order_index" binding:"required,gte=1"`
}

// OutlineResponse 大纲节点响应
type OutlineResponse struct {
	ID         string                   `json:"id"`
	ProjectID  string                   `json:"project_id"`
	OrderIndex int                      `json:"order_index"`
	Title      string                   `json:"title"`
	Content    string                   `json:"content,omitempty"`
	Structure  *entity.OutlineStructure `json:"structure,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// OutlineListResponse 大纲列表响应
type OutlineListResponse struct {
	Outlines []*OutlineResponse `json:"outlines"`
}

// ToOutlineResponse 将领域实体转换为响应 DTO
func ToOutlineResponse(o *entity.Outline) *OutlineResponse {
	if o == nil {
		return nil
	}
	return &OutlineResponse{
		ID:         o.ID,
		ProjectID:  o.ProjectID,
		OrderIndex: o.OrderIndex,
		Title:      o.Title,
		Content:    o.Content,
		Structure:  o.Structure,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

// ToOutlineListResponse 将领域实体列表转换为响应 DTO
func ToOutlineListResponse(outlines []*entity.Outline) *OutlineListResponse {
	resp := &OutlineListResponse{
		Outlines: make([]*OutlineResponse, 0, len(outlines)),
	}
	for _, o := range outlines {
		resp.Outlines = append(resp.Outlines, ToOutlineResponse(o))
	}
	return resp
}

// ToOutlineEntity 将请求 DTO 转换为领域实体
func (r *CreateOutlineRequest) ToOutlineEntity(projectID string, orderIndex int) *entity.Outline {
	outline := entity.NewOutline(projectID, orderIndex, r.Title, r.Content)
	outline.Structure = &entity.OutlineStructure{
		Title:              r.Title,
		Summary:            r.Content,
		Content:            r.Content,
		KeyEvents:          r.KeyEvents,
		CharactersInvolved: r.Characters,
	}
	return outline
}

// ApplyToOutline 将更新请求应用到大纲实体，结构化字段随内容同步
func (r *UpdateOutlineRequest) ApplyToOutline(o *entity.Outline) {
	if o.Structure == nil {
		o.Structure = &entity.OutlineStructure{}
	}
	if r.Title != nil {
		o.Title = *r.Title
		o.Structure.Title = *r.Title
	}
	if r.Content != nil {
		o.Content = *r.Content
		o.Structure.Summary = *r.Content
		o.Structure.Content = *r.Content
	}
	if r.KeyEvents != nil {
		o.Structure.KeyEvents = *r.KeyEvents
	}
	if r.Characters != nil {
		o.Structure.CharactersInvolved = *r.Characters
	}
	o.UpdatedAt = time.Now()
}
