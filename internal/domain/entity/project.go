// Package entity 定义领域实体
package entity

import (
	"time"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusWriting   ProjectStatus = "writing"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// WizardStatus 创建向导进度状态
type WizardStatus string

const (
	WizardStatusIncomplete WizardStatus = "incomplete"
	WizardStatusCompleted  WizardStatus = "completed"
)

// Project 小说项目实体
// 世界观四要素（时代/地点/氛围/规则）由向导第一步生成，可被重新生成覆盖
type Project struct {
	ID                   string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID             string        `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Title                string        `json:"title" gorm:"type:varchar(255);not null"`
	Description          string        `json:"description,omitempty" gorm:"type:text"`
	Theme                string        `json:"theme,omitempty" gorm:"type:varchar(255)"`
	Genre                string        `json:"genre,omitempty" gorm:"type:varchar(100)"`
	TimePeriod           string        `json:"time_period,omitempty" gorm:"type:text"`
	Location             string        `json:"location,omitempty" gorm:"type:text"`
	Atmosphere           string        `json:"atmosphere,omitempty" gorm:"type:text"`
	WorldRules           string        `json:"world_rules,omitempty" gorm:"type:text"`
	NarrativePerspective string        `json:"narrative_perspective,omitempty" gorm:"type:varchar(50)"`
	TargetWords          int           `json:"target_words,omitempty"`
	ChapterCount         int           `json:"chapter_count" gorm:"default:0"`
	CharacterCount       int           `json:"character_count" gorm:"default:0"`
	CurrentWords         int           `json:"current_words" gorm:"default:0"`
	Status               ProjectStatus `json:"status" gorm:"type:varchar(50);default:'planning'"`
	WizardStatus         WizardStatus  `json:"wizard_status" gorm:"type:varchar(50);default:'incomplete'"`
	WizardStep           int           `json:"wizard_step" gorm:"default:0"`
	CreatedAt            time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// NewProject 创建新项目
func NewProject(tenantID, title string) *Project {
	now := time.Now()
	return &Project{
		TenantID:     tenantID,
		Title:        title,
		Status:       ProjectStatusPlanning,
		WizardStatus: WizardStatusIncomplete,
		WizardStep:   0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyWorldBuilding 写入向导第一步生成的世界观字段
func (p *Project) ApplyWorldBuilding(timePeriod, location, atmosphere, rules string) {
	p.TimePeriod = timePeriod
	p.Location = location
	p.Atmosphere = atmosphere
	p.WorldRules = rules
	p.UpdatedAt = time.Now()
}

// CompleteWizard 标记向导完成，项目进入写作阶段
func (p *Project) CompleteWizard() {
	p.WizardStatus = WizardStatusCompleted
	p.WizardStep = 4
	p.Status = ProjectStatusWriting
	p.UpdatedAt = time.Now()
}

// UpdateWordCount 按增量更新累计字数
func (p *Project) UpdateWordCount(delta int) {
	p.CurrentWords += delta
	if p.CurrentWords < 0 {
		p.CurrentWords = 0
	}
	p.UpdatedAt = time.Now()
}
