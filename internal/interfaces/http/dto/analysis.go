// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// AnalysisTaskResponse 分析任务状态响应
type AnalysisTaskResponse struct {
	ID            string     `json:"id"`
	ChapterID     string     `json:"chapter_id"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	AutoRecovered bool       `json:"auto_recovered"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ChapterAnalysisResponse 章节分析结果响应
type ChapterAnalysisResponse struct {
	ChapterID        string                          `json:"chapter_id"`
	PlotStage        string                          `json:"plot_stage,omitempty"`
	Summary          string                          `json:"summary,omitempty"`
	Hooks            []entity.AnalysisHook           `json:"hooks,omitempty"`
	Foreshadows      []entity.AnalysisForeshadow     `json:"foreshadows,omitempty"`
	PlotPoints       []entity.AnalysisPlotPoint      `json:"plot_points,omitempty"`
	CharacterStates  []entity.AnalysisCharacterState `json:"character_states,omitempty"`
	Conflict         *entity.AnalysisConflict        `json:"conflict,omitempty"`
	EmotionalArc     []string                        `json:"emotional_arc,omitempty"`
	Scenes           []entity.AnalysisScene          `json:"scenes,omitempty"`
	Pacing           string                          `json:"pacing,omitempty"`
	DialogueRatio    float64                         `json:"dialogue_ratio,omitempty"`
	DescriptionRatio float64                         `json:"description_ratio,omitempty"`
	Scores           map[string]float64              `json:"scores,omitempty"`
	Suggestions      []string                        `json:"suggestions,omitempty"`
	AnalyzedAt       time.Time                       `json:"analyzed_at"`
	UpdatedAt        time.Time                       `json:"updated_at"`
}

// AnalysisStatusResponse 分析状态探测响应，Analysis 仅在任务完成时携带
type AnalysisStatusResponse struct {
	Task     *AnalysisTaskResponse    `json:"task,omitempty"`
	Analysis *ChapterAnalysisResponse `json:"analysis,omitempty"`
}

// ToAnalysisTaskResponse 将领域实体转换为响应 DTO
func ToAnalysisTaskResponse(t *entity.AnalysisTask) *AnalysisTaskResponse {
	if t == nil {
		return nil
	}
	return &AnalysisTaskResponse{
		ID:            t.ID,
		ChapterID:     t.ChapterID,
		Status:        string(t.Status),
		Progress:      t.Progress,
		ErrorMessage:  t.ErrorMessage,
		AutoRecovered: t.AutoRecovered,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
	}
}

// ToChapterAnalysisResponse 将领域实体转换为响应 DTO
func ToChapterAnalysisResponse(a *entity.ChapterAnalysis) *ChapterAnalysisResponse {
	if a == nil {
		return nil
	}
	return &ChapterAnalysisResponse{
		ChapterID:        a.ChapterID,
		PlotStage:        a.PlotStage,
		Summary:          a.Summary,
		Hooks:            a.Hooks,
		Foreshadows:      a.Foreshadows,
		PlotPoints:       a.PlotPoints,
		CharacterStates:  a.CharacterStates,
		Conflict:         a.Conflict,
		EmotionalArc:     a.EmotionalArc,
		Scenes:           a.Scenes,
		Pacing:           a.Pacing,
		DialogueRatio:    a.DialogueRatio,
		DescriptionRatio: a.DescriptionRatio,
		Scores:           a.Scores,
		Suggestions:      a.Suggestions,
		AnalyzedAt:       a.AnalyzedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}
