// Package entity 定义领域实体
package entity

import (
	"time"
)

// AnalysisHook 剧情钩子
type AnalysisHook struct {
	Type     string `json:"type,omitempty"`
	Content  string `json:"content,omitempty"`
	Position string `json:"position,omitempty"`
	Strength int    `json:"strength,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
}

// AnalysisForeshadow 伏笔记录
type AnalysisForeshadow struct {
	Type             string `json:"type,omitempty"` // planted / resolved
	Content          string `json:"content,omitempty"`
	Strength         int    `json:"strength,omitempty"`
	Keyword          string `json:"keyword,omitempty"`
	ReferenceChapter int    `json:"reference_chapter,omitempty"`
}

// AnalysisPlotPoint 情节点
type AnalysisPlotPoint struct {
	Type       string  `json:"type,omitempty"`
	Content    string  `json:"content,omitempty"`
	Impact     string  `json:"impact,omitempty"`
	Importance float64 `json:"importance,omitempty"`
	Keyword    string  `json:"keyword,omitempty"`
}

// AnalysisCharacterState 角色状态变化
type AnalysisCharacterState struct {
	Name       string `json:"name,omitempty"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	Psychology string `json:"psychology,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
}

// AnalysisConflict 冲突描述
type AnalysisConflict struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Level       int      `json:"level,omitempty"`
	Parties     []string `json:"parties,omitempty"`
	Types       []string `json:"types,omitempty"`
}

// AnalysisScene 场景描述
type AnalysisScene struct {
	Location string `json:"location,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	Mood     string `json:"mood,omitempty"`
}

// ChapterAnalysis 章节分析结果，每章至多一条
type ChapterAnalysis struct {
	ID               string                   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID         string                   `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ProjectID        string                   `json:"project_id" gorm:"type:uuid;index;not null"`
	ChapterID        string                   `json:"chapter_id" gorm:"type:uuid;uniqueIndex;not null"`
	PlotStage        string                   `json:"plot_stage,omitempty" gorm:"type:varchar(50)"`
	Summary          string                   `json:"summary,omitempty" gorm:"type:text"`
	Hooks            []AnalysisHook           `json:"hooks,omitempty" gorm:"type:jsonb;serializer:json"`
	Foreshadows      []AnalysisForeshadow     `json:"foreshadows,omitempty" gorm:"type:jsonb;serializer:json"`
	PlotPoints       []AnalysisPlotPoint      `json:"plot_points,omitempty" gorm:"type:jsonb;serializer:json"`
	CharacterStates  []AnalysisCharacterState `json:"character_states,omitempty" gorm:"type:jsonb;serializer:json"`
	Conflict         *AnalysisConflict        `json:"conflict,omitempty" gorm:"type:jsonb;serializer:json"`
	EmotionalArc     []string                 `json:"emotional_arc,omitempty" gorm:"type:jsonb;serializer:json"`
	Scenes           []AnalysisScene          `json:"scenes,omitempty" gorm:"type:jsonb;serializer:json"`
	Pacing           string                   `json:"pacing,omitempty" gorm:"type:varchar(50)"`
	DialogueRatio    float64                  `json:"dialogue_ratio,omitempty"`
	DescriptionRatio float64                  `json:"description_ratio,omitempty"`
	Scores           map[string]float64       `json:"scores,omitempty" gorm:"type:jsonb;serializer:json"`
	Suggestions      []string                 `json:"suggestions,omitempty" gorm:"type:jsonb;serializer:json"`
	AnalyzedAt       time.Time                `json:"analyzed_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ChapterAnalysis) TableName() string {
	return "chapter_analyses"
}
