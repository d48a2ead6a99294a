// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// HistoryResponse 生成历史响应
type HistoryResponse struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	GenerationType   string    `json:"generation_type"`
	Prompt           string    `json:"prompt,omitempty"`
	Result           string    `json:"result,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryListResponse 历史分页列表响应
type HistoryListResponse struct {
	Histories []*HistoryResponse `json:"histories"`
}

// ToHistoryResponse 将领域实体转换为响应 DTO
func ToHistoryResponse(h *entity.GenerationHistory) *HistoryResponse {
	if h == nil {
		return nil
	}
	return &HistoryResponse{
		ID:               h.ID,
		ProjectID:        h.ProjectID,
		GenerationType:   string(h.GenerationType),
		Prompt:           h.Prompt,
		Result:           h.Result,
		Provider:         h.Provider,
		Model:            h.Model,
		PromptTokens:     h.PromptTokens,
		CompletionTokens: h.CompletionTokens,
		Status:           h.Status,
		CreatedAt:        h.CreatedAt,
	}
}

// ToHistoryListResponse 将领域实体列表转换为响应 DTO
func ToHistoryListResponse(histories []*entity.GenerationHistory) *HistoryListResponse {
	resp := &HistoryListResponse{
		Histories: make([]*HistoryResponse, 0, len(histories)),
	}
	for _, h := range histories {
		resp.Histories = append(resp.Histories, ToHistoryResponse(h))
	}
	return resp
}
