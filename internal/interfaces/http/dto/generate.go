// Package dto 提供 HTTP 层数据传输对象
package dto

// GenerateChapterRequest 章节流式生成请求
type GenerateChapterRequest struct {
	StyleID      string `json:"style_id,omitempty" binding:"omitempty,uuid"`
	TargetWords  int    `json:"target_words" binding:"gte=0"`
	EnableTools  bool   `json:"enable_tools"`
	Requirements string `json:"requirements,omitempty" binding:"max=5000"`
	Provider     string `json:"provider,omitempty" binding:"max=50"`
}

// GenerateOutlineRequest 大纲流式生成请求
// Mode 为空时按现有大纲数自动选择 new / continue
type GenerateOutlineRequest struct {
	Mode           string `json:"mode,omitempty" binding:"omitempty,oneof=auto new continue"`
	TotalChapters  int    `json:"total_chapters" binding:"gte=0,lte=500"`
	PlotStage      string `json:"plot_stage,omitempty" binding:"max=100"`
	StoryDirection string `json:"story_direction,omitempty" binding:"max=5000"`
	Requirements   string `json:"requirements,omitempty" binding:"max=5000"`
	EnableTools    bool   `json:"enable_tools"`
	Provider       string `json:"provider,omitempty" binding:"max=50"`
}

// WizardWorldRequest 向导第一步：创建项目并生成世界观
type WizardWorldRequest struct {
	Title                string `json:"title" binding:"required,max=255"`
	Description          string `json:"description,omitempty" binding:"max=5000"`
	Theme                string `json:"theme,omitempty" binding:"max=255"`
	Genre                string `json:"genre,omitempty" binding:"max=100"`
	NarrativePerspective string `json:"narrative_perspective,omitempty" binding:"max=50"`
	TargetWords          int    `json:"target_words" binding:"gte=0"`
	ChapterCount         int    `json:"chapter_count" binding:"gte=0,lte=500"`
	CharacterCount       int    `json:"character_count" binding:"gte=0,lte=100"`
	Requirements         string `json:"requirements,omitempty" binding:"max=5000"`
	Provider             string `json:"provider,omitempty" binding:"max=50"`
}

// WizardCharactersRequest 向导第二步：批量生成角色
type WizardCharactersRequest struct {
	Count        int    `json:"count" binding:"gte=0,lte=100"`
	Requirements string `json:"requirements,omitempty" binding:"max=5000"`
	Provider     string `json:"provider,omitempty" binding:"max=50"`
}

// WizardOutlineRequest 向导第三步：生成开局大纲
type WizardOutlineRequest struct {
	NarrativePerspective string `json:"narrative_perspective,omitempty" binding:"max=50"`
	TargetWords          int    `json:"target_words" binding:"gte=0"`
	Requirements         string `json:"requirements,omitempty" binding:"max=5000"`
	Provider             string `json:"provider,omitempty" binding:"max=50"`
}
