// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// SearchMemoryRequest 记忆语义检索请求
type SearchMemoryRequest struct {
	Query          string   `json:"query" binding:"required,max=2000"`
	TopK           int      `json:"top_k" binding:"gte=0,lte=50"`
	BeforeTimeline int      `json:"before_timeline" binding:"gte=0"`
	MemoryTypes    []string `json:"memory_types,omitempty"`
}

// BuildContextRequest 记忆上下文组装请求
type BuildContextRequest struct {
	CurrentChapter int      `json:"current_chapter" binding:"required,gt=0"`
	ChapterOutline string   `json:"chapter_outline,omitempty" binding:"max=10000"`
	CharacterNames []string `json:"character_names,omitempty"`
}

// MemoryFragmentResponse 记忆片段响应
type MemoryFragmentResponse struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	ChapterID         *string   `json:"chapter_id,omitempty"`
	MemoryType        string    `json:"memory_type"`
	Title             string    `json:"title,omitempty"`
	Content           string    `json:"content"`
	Importance        float64   `json:"importance"`
	Tags              []string  `json:"tags,omitempty"`
	RelatedCharacters []string  `json:"related_characters,omitempty"`
	IsForeshadow      int       `json:"is_foreshadow"`
	ReferenceChapter  int       `json:"reference_chapter,omitempty"`
	StoryTimeline     int       `json:"story_timeline"`
	TextPosition      int       `json:"text_position"`
	TextLength        int       `json:"text_length"`
	Score             *float32  `json:"score,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SearchMemoryResponse 语义检索响应；DisabledReason 非空表示已降级为时间线召回
type SearchMemoryResponse struct {
	Fragments      []*MemoryFragmentResponse `json:"fragments"`
	DisabledReason string                    `json:"disabled_reason,omitempty"`
}

// MemoryListResponse 记忆片段分页列表响应
type MemoryListResponse struct {
	Fragments []*MemoryFragmentResponse `json:"fragments"`
}

// ToMemoryFragmentResponse 将领域实体转换为响应 DTO；score 可为 nil
func ToMemoryFragmentResponse(f *entity.MemoryFragment, score *float32) *MemoryFragmentResponse {
	if f == nil {
		return nil
	}
	return &MemoryFragmentResponse{
		ID:                f.ID,
		ProjectID:         f.ProjectID,
		ChapterID:         f.ChapterID,
		MemoryType:        string(f.MemoryType),
		Title:             f.Title,
		Content:           f.Content,
		Importance:        f.Importance,
		Tags:              f.Tags,
		RelatedCharacters: f.RelatedCharacters,
		IsForeshadow:      f.IsForeshadow,
		ReferenceChapter:  f.ReferenceChapter,
		StoryTimeline:     f.StoryTimeline,
		TextPosition:      f.TextPosition,
		TextLength:        f.TextLength,
		Score:             score,
		CreatedAt:         f.CreatedAt,
	}
}

// ToMemoryFragmentResponses 批量转换，scores 以片段 ID 为键，可为 nil
func ToMemoryFragmentResponses(fragments []*entity.MemoryFragment, scores map[string]float32) []*MemoryFragmentResponse {
	out := make([]*MemoryFragmentResponse, 0, len(fragments))
	for _, f := range fragments {
		var score *float32
		if scores != nil {
			if v, ok := scores[f.ID]; ok {
				s := v
				score = &s
			}
		}
		out = append(out, ToMemoryFragmentResponse(f, score))
	}
	return out
}
