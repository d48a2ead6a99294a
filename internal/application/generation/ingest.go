package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"novelforge-api/internal/domain/entity"
	workflowprompt "novelforge-api/internal/workflow/prompt"
	errs "novelforge-api/pkg/errors"
)

// analysisPayload 模型输出的分析 JSON
type analysisPayload struct {
	Summary          string                          `json:"summary"`
	PlotStage        string                          `json:"plot_stage"`
	Hooks            []entity.AnalysisHook           `json:"hooks"`
	Foreshadows      []entity.AnalysisForeshadow     `json:"foreshadows"`
	PlotPoints       []entity.AnalysisPlotPoint      `json:"plot_points"`
	CharacterStates  []entity.AnalysisCharacterState `json:"character_states"`
	Conflict         *entity.AnalysisConflict        `json:"conflict"`
	EmotionalArc     []string                        `json:"emotional_arc"`
	Scenes           []entity.AnalysisScene          `json:"scenes"`
	Pacing           string                          `json:"pacing"`
	DialogueRatio    float64                         `json:"dialogue_ratio"`
	DescriptionRatio float64                         `json:"description_ratio"`
	Scores           map[string]float64              `json:"scores"`
	Suggestions      []string                        `json:"suggestions"`
}

// parseAnalysisPayload 解析模型输出的分析 JSON。
// 先尝试直接解析，失败后剥离代码块并截取首个完整 JSON 再试。
func parseAnalysisPayload(raw string) (*analysisPayload, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errs.ErrAnalysisParseFailed.WithDetail("empty analysis output")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		return &payload, nil
	}

	cleaned := CleanJSONPayload(text)
	if cleaned == "" {
		return nil, errs.ErrAnalysisParseFailed.WithDetail("no JSON object in analysis output")
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, errs.ErrAnalysisParseFailed.WithError(err)
	}
	return &payload, nil
}

// buildChapterAnalysis 将解析后的载荷装配为章节分析实体
func buildChapterAnalysis(tenantID string, chapter *entity.Chapter, p *analysisPayload) *entity.ChapterAnalysis {
	now := time.Now()
	return &entity.ChapterAnalysis{
		TenantID:         tenantID,
		ProjectID:        chapter.ProjectID,
		ChapterID:        chapter.ID,
		PlotStage:        p.PlotStage,
		Summary:          p.Summary,
		Hooks:            p.Hooks,
		Foreshadows:      p.Foreshadows,
		PlotPoints:       p.PlotPoints,
		CharacterStates:  p.CharacterStates,
		Conflict:         p.Conflict,
		EmotionalArc:     p.EmotionalArc,
		Scenes:           p.Scenes,
		Pacing:           p.Pacing,
		DialogueRatio:    p.DialogueRatio,
		DescriptionRatio: p.DescriptionRatio,
		Scores:           p.Scores,
		Suggestions:      p.Suggestions,
		AnalyzedAt:       now,
		UpdatedAt:        now,
	}
}

// deriveFragments 从分析结果派生记忆片段：
// 一条章节概要（重要度 0.6）、强度 >= 6 的钩子、全部伏笔、
// 重要度 >= 0.6 的情节点、全部角色状态变化（重要度 0.7），
// 以及强度 >= 7 的章节冲突（并入情节点）。
func deriveFragments(tenantID string, chapter *entity.Chapter, p *analysisPayload) []*entity.MemoryFragment {
	chapterID := chapter.ID
	number := chapter.ChapterNumber
	content := chapter.Content
	fragments := make([]*entity.MemoryFragment, 0, 8)

	if summary := summaryContent(p, content); summary != "" {
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:      tenantID,
			ProjectID:     chapter.ProjectID,
			ChapterID:     &chapterID,
			MemoryType:    entity.MemoryTypeChapterSummary,
			Title:         fmt.Sprintf("第%d章《%s》摘要", number, chapter.Title),
			Content:       summary,
			Importance:    0.6,
			Tags:          []string{"摘要", "章节概览", chapter.Title},
			StoryTimeline: number,
			TextPosition:  0,
			TextLength:    utf8.RuneCountInString(summary),
		})
	}

	for _, hook := range p.Hooks {
		if hook.Strength < 6 {
			continue
		}
		pos, length := locateKeyword(content, hook.Keyword)
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:      tenantID,
			ProjectID:     chapter.ProjectID,
			ChapterID:     &chapterID,
			MemoryType:    entity.MemoryTypeHook,
			Title:         fmt.Sprintf("%s - %s", workflowprompt.Fallback(hook.Type, "钩子"), hook.Position),
			Content:       fmt.Sprintf("[%s钩子] %s", workflowprompt.Fallback(hook.Type, "未知"), hook.Content),
			Importance:    strengthScore(hook.Strength),
			Tags:          []string{workflowprompt.Fallback(hook.Type, "钩子"), hook.Position},
			StoryTimeline: number,
			TextPosition:  pos,
			TextLength:    length,
		})
	}

	for _, fs := range p.Foreshadows {
		state := entity.ForeshadowPlanted
		title := "埋下伏笔"
		if fs.Type == "resolved" {
			state = entity.ForeshadowResolved
			title = "回收伏笔"
		}
		pos, length := locateKeyword(content, fs.Keyword)
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:         tenantID,
			ProjectID:        chapter.ProjectID,
			ChapterID:        &chapterID,
			MemoryType:       entity.MemoryTypeForeshadow,
			Title:            title,
			Content:          fs.Content,
			Importance:       strengthScore(fs.Strength),
			Tags:             []string{"伏笔", workflowprompt.Fallback(fs.Type, "planted")},
			IsForeshadow:     state,
			ReferenceChapter: fs.ReferenceChapter,
			StoryTimeline:    number,
			TextPosition:     pos,
			TextLength:       length,
		})
	}

	for _, pp := range p.PlotPoints {
		if pp.Importance < 0.6 {
			continue
		}
		pos, length := locateKeyword(content, pp.Keyword)
		body := pp.Content
		if impact := strings.TrimSpace(pp.Impact); impact != "" {
			body = fmt.Sprintf("%s。影响: %s", pp.Content, impact)
		}
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:      tenantID,
			ProjectID:     chapter.ProjectID,
			ChapterID:     &chapterID,
			MemoryType:    entity.MemoryTypePlotPoint,
			Title:         fmt.Sprintf("情节点 - %s", workflowprompt.Fallback(pp.Type, "未知")),
			Content:       body,
			Importance:    pp.Importance,
			Tags:          []string{"情节点", workflowprompt.Fallback(pp.Type, "未知")},
			StoryTimeline: number,
			TextPosition:  pos,
			TextLength:    length,
		})
	}

	for _, cs := range p.CharacterStates {
		name := workflowprompt.Fallback(cs.Name, "未知角色")
		body := fmt.Sprintf("%s的状态变化: %s → %s", name, cs.Before, cs.After)
		if psy := strings.TrimSpace(cs.Psychology); psy != "" {
			body = fmt.Sprintf("%s。%s", body, psy)
		}
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:          tenantID,
			ProjectID:         chapter.ProjectID,
			ChapterID:         &chapterID,
			MemoryType:        entity.MemoryTypeCharacterEvent,
			Title:             fmt.Sprintf("%s的变化", name),
			Content:           body,
			Importance:        0.7,
			Tags:              []string{"角色", name, "状态变化"},
			RelatedCharacters: []string{name},
			StoryTimeline:     number,
			TextPosition:      -1,
		})
	}

	if c := p.Conflict; c != nil && c.Level >= 7 {
		fragments = append(fragments, &entity.MemoryFragment{
			TenantID:      tenantID,
			ProjectID:     chapter.ProjectID,
			ChapterID:     &chapterID,
			MemoryType:    entity.MemoryTypePlotPoint,
			Title:         fmt.Sprintf("冲突 - 强度%d", c.Level),
			Content:       fmt.Sprintf("重要冲突: %s。冲突各方: %s", c.Description, strings.Join(c.Parties, ", ")),
			Importance:    strengthScore(c.Level),
			Tags:          append([]string{"冲突"}, c.Types...),
			StoryTimeline: number,
			TextPosition:  -1,
		})
	}

	for _, f := range fragments {
		f.ClampImportance()
	}
	return fragments
}

// summaryContent 章节概要内容：分析摘要优先，其次前三个情节点拼接，最后正文前 300 字
func summaryContent(p *analysisPayload, chapterContent string) string {
	if s := strings.TrimSpace(p.Summary); s != "" {
		return s
	}

	parts := make([]string, 0, 3)
	for _, pp := range p.PlotPoints {
		if len(parts) == 3 {
			break
		}
		if c := strings.TrimSpace(pp.Content); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "；")
	}

	runes := []rune(strings.TrimSpace(chapterContent))
	if len(runes) == 0 {
		return ""
	}
	if len(runes) > 300 {
		return string(runes[:300]) + "..."
	}
	return string(runes)
}

// strengthScore 将 1-10 的强度映射为重要度，缺省按 5 处理
func strengthScore(strength int) float64 {
	if strength <= 0 {
		strength = 5
	}
	score := float64(strength) / 10
	if score > 1 {
		score = 1
	}
	return score
}

// keywordPunctuation 定位降级时忽略的中文标点
const keywordPunctuation = "，。！？、；：“”‘’（）《》【】"

// locateKeyword 在正文中定位关键词，返回 rune 维度的 (起始位置, 长度)。
// 依次尝试精确匹配、去标点匹配、前 15 字前缀匹配，全部失败返回 (-1, 0)。
// 去标点匹配命中时位置是净化文本中的位置，仅供可视化参考。
func locateKeyword(content, keyword string) (int, int) {
	if keyword == "" || content == "" {
		return -1, 0
	}

	if pos := runeIndex(content, keyword); pos >= 0 {
		return pos, utf8.RuneCountInString(keyword)
	}

	cleanKeyword := stripPunctuation(keyword)
	if cleanKeyword != "" {
		if pos := runeIndex(stripPunctuation(content), cleanKeyword); pos >= 0 {
			return pos, utf8.RuneCountInString(cleanKeyword)
		}
	}

	if runes := []rune(keyword); len(runes) > 10 {
		n := 15
		if len(runes) < n {
			n = len(runes)
		}
		prefix := string(runes[:n])
		if pos := runeIndex(content, prefix); pos >= 0 {
			return pos, n
		}
	}
	return -1, 0
}

// runeIndex 返回子串的 rune 起始位置，未找到返回 -1
func runeIndex(s, substr string) int {
	byteIdx := strings.Index(s, substr)
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:byteIdx])
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(keywordPunctuation, r) {
			return -1
		}
		return r
	}, s)
}
