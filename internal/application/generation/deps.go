package generation

import (
	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/repository"
)

var (
	_ ContextBuilder = (*memory.Service)(nil)
	_ MemoryWriter   = (*memory.Service)(nil)
)

// Deps 编排器共享依赖集合。各编排器只读取自己需要的字段，未用到的可留空。
type Deps struct {
	Scope         TenantScope
	Projects      repository.ProjectRepository
	Chapters      repository.ChapterRepository
	Outlines      repository.OutlineRepository
	Characters    repository.CharacterRepository
	Relationships repository.CharacterRelationshipRepository
	RelationTypes repository.RelationshipTypeRepository
	Organizations repository.OrganizationRepository
	OrgMembers    repository.OrganizationMemberRepository
	Styles        repository.WritingStyleRepository
	DefaultStyles repository.ProjectDefaultStyleRepository
	Histories     repository.GenerationHistoryRepository
	Analyses      repository.ChapterAnalysisRepository
	Tasks         repository.AnalysisTaskRepository
	Memory        ContextBuilder
	MemoryWriter  MemoryWriter
	LLM           *LLMAdapter
	Tools         ToolDispatcher
	Queue         AnalysisQueue
	Config        *config.Config
}

func (d *Deps) generationConfig() *config.GenerationConfig {
	if d == nil || d.Config == nil {
		return &config.GenerationConfig{}
	}
	return &d.Config.Generation
}

func (d *Deps) analysisConfig() *config.AnalysisConfig {
	if d == nil || d.Config == nil {
		return &config.AnalysisConfig{}
	}
	return &d.Config.Analysis
}

func (d *Deps) toolConfig() *config.ToolConfig {
	if d == nil || d.Config == nil {
		return &config.ToolConfig{}
	}
	return &d.Config.Tool
}

// historyPromptLimit 生成历史截断长度，未配置时取 500
func (d *Deps) historyPromptLimit() int {
	if cfg := d.generationConfig(); cfg.HistoryPromptLimit > 0 {
		return cfg.HistoryPromptLimit
	}
	return 500
}
