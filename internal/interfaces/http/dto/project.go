// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
)

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Title                string `json:"title" binding:"required,max=255"`
	Description          string `json:"description" binding:"max=5000"`
	Theme                string `json:"theme" binding:"max=255"`
	Genre                string `json:"genre" binding:"max=100"`
	NarrativePerspective string `json:"narrative_perspective" binding:"max=50"`
	TargetWords          int    `json:"target_words" binding:"gte=0"`
}

// UpdateProjectRequest 更新项目请求
type UpdateProjectRequest struct {
	Title                *string `json:"title,omitempty" binding:"omitempty,max=255"`
	Description          *string `json:"description,omitempty" binding:"omitempty,max=5000"`
	Theme                *string `json:"theme,omitempty" binding:"omitempty,max=255"`
	Genre                *string `json:"genre,omitempty" binding:"omitempty,max=100"`
	TimePeriod           *string `json:"time_period,omitempty"`
	Location             *string `json:"location,omitempty"`
	Atmosphere           *string `json:"atmosphere,omitempty"`
	WorldRules           *string `json:"world_rules,omitempty"`
	NarrativePerspective *string `json:"narrative_perspective,omitempty" binding:"omitempty,max=50"`
	TargetWords          *int    `json:"target_words,omitempty" binding:"omitempty,gte=0"`
	Status               *string `json:"status,omitempty"`
}

// ProjectResponse 项目响应
type ProjectResponse struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Theme                string    `json:"theme,omitempty"`
	Genre                string    `json:"genre,omitempty"`
	TimePeriod           string    `json:"time_period,omitempty"`
	Location             string    `json:"location,omitempty"`
	Atmosphere           string    `json:"atmosphere,omitempty"`
	WorldRules           string    `json:"world_rules,omitempty"`
	NarrativePerspective string    `json:"narrative_perspective,omitempty"`
	TargetWords          int       `json:"target_words,omitempty"`
	ChapterCount         int       `json:"chapter_count"`
	CharacterCount       int       `json:"character_count"`
	CurrentWords         int       `json:"current_words"`
	Status               string    `json:"status"`
	WizardStatus         string    `json:"wizard_status"`
	WizardStep           int       `json:"wizard_step"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ProjectListResponse 项目列表响应
type ProjectListResponse struct {
	Projects []*ProjectResponse `json:"projects"`
}

// ProjectStatsResponse 项目统计响应
type ProjectStatsResponse struct {
	TotalChapters   int   `json:"total_chapters"`
	TotalOutlines   int   `json:"total_outlines"`
	TotalCharacters int   `json:"total_characters"`
	TotalWordCount  int64 `json:"total_word_count"`
}

// ToProjectResponse 将领域实体转换为响应 DTO
func ToProjectResponse(p *entity.Project) *ProjectResponse {
	if p == nil {
		return nil
	}
	return &ProjectResponse{
		ID:                   p.ID,
		Title:                p.Title,
		Description:          p.Description,
		Theme:                p.Theme,
		Genre:                p.Genre,
		TimePeriod:           p.TimePeriod,
		Location:             p.Location,
		Atmosphere:           p.Atmosphere,
		WorldRules:           p.WorldRules,
		NarrativePerspective: p.NarrativePerspective,
		TargetWords:          p.TargetWords,
		ChapterCount:         p.ChapterCount,
		CharacterCount:       p.CharacterCount,
		CurrentWords:         p.CurrentWords,
		Status:               string(p.Status),
		WizardStatus:         string(p.WizardStatus),
		WizardStep:           p.WizardStep,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ToProjectListResponse 将领域实体列表转换为响应 DTO
func ToProjectListResponse(projects []*entity.Project) *ProjectListResponse {
	resp := &ProjectListResponse{
		Projects: make([]*ProjectResponse, 0, len(projects)),
	}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, ToProjectResponse(p))
	}
	return resp
}

// ToProjectStatsResponse 将统计结果转换为响应 DTO
func ToProjectStatsResponse(s *repository.ProjectStats) *ProjectStatsResponse {
	if s == nil {
		return nil
	}
	return &ProjectStatsResponse{
		TotalChapters:   s.TotalChapters,
		TotalOutlines:   s.TotalOutlines,
		TotalCharacters: s.TotalCharacters,
		TotalWordCount:  s.TotalWordCount,
	}
}

// ToProjectEntity 将请求 DTO 转换为领域实体
func (r *CreateProjectRequest) ToProjectEntity(tenantID string) *entity.Project {
	project := entity.NewProject(tenantID, r.Title)
	project.Description = r.Description
	project.Theme = r.Theme
	project.Genre = r.Genre
	project.NarrativePerspective = r.NarrativePerspective
	project.TargetWords = r.TargetWords
	return project
}

// ApplyToProject 将更新请求应用到项目实体
func (r *UpdateProjectRequest) ApplyToProject(p *entity.Project) {
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Theme != nil {
		p.Theme = *r.Theme
	}
	if r.Genre != nil {
		p.Genre = *r.Genre
	}
	if r.TimePeriod != nil {
		p.TimePeriod = *r.TimePeriod
	}
	if r.Location != nil {
		p.Location = *r.Location
	}
	if r.Atmosphere != nil {
		p.Atmosphere = *r.Atmosphere
	}
	if r.WorldRules != nil {
		p.WorldRules = *r.WorldRules
	}
	if r.NarrativePerspective != nil {
		p.NarrativePerspective = *r.NarrativePerspective
	}
	if r.TargetWords != nil {
		p.TargetWords = *r.TargetWords
	}
	if r.Status != nil {
		p.Status = entity.ProjectStatus(*r.Status)
	}
	p.UpdatedAt = time.Now()
}
