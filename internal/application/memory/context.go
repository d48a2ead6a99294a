package memory

import (
	"context"
	"fmt"
	"strings"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/pkg/logger"
)

const (
	// 情节点召回窗口（最近多少章）与条数上限
	defaultPlotPointWindow = 10
	defaultPlotPointLimit  = 5

	// 早期章节摘要截断长度
	recentSummaryRunes = 200
	// 全文保留的最近章节数
	recentFullCount = 2
)

// ChapterExcerpt 最近章节节选：最末 1-2 章保留全文，更早的只保留摘要。
type ChapterExcerpt struct {
	ChapterNumber int    `json:"chapter_number"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Full          bool   `json:"full"`
}

// SliceStat 单个切片的数量与字符量统计。
type SliceStat struct {
	Count int `json:"count"`
	Chars int `json:"chars"`
}

type ContextStats struct {
	RecentContext    SliceStat `json:"recent_context"`
	RelevantMemories SliceStat `json:"relevant_memories"`
	Foreshadows      SliceStat `json:"foreshadows"`
	CharacterStates  SliceStat `json:"character_states"`
	PlotPoints       SliceStat `json:"plot_points"`
	TotalChars       int       `json:"total_chars"`
}

// ContextBundle 章节生成所需的记忆上下文，五个切片各自独立取材。
// 组装过程为纯读，不修改任何存储状态。
type ContextBundle struct {
	RecentContext    []ChapterExcerpt         `json:"recent_context"`
	RelevantMemories []*entity.MemoryFragment `json:"relevant_memories"`
	Foreshadows      []*entity.MemoryFragment `json:"foreshadows"`
	CharacterStates  []*entity.MemoryFragment `json:"character_states"`
	PlotPoints       []*entity.MemoryFragment `json:"plot_points"`
	Stats            ContextStats             `json:"stats"`
	DisabledReason   string                   `json:"disabled_reason,omitempty"`
}

type BuildContextInput struct {
	TenantID       string
	ProjectID      string
	CurrentChapter int
	ChapterOutline string
	CharacterNames []string
}

// BuildContext 组装目标章节的记忆上下文：
//  1. recent_context：最近 N 章（末 1-2 章全文，更早章节 200 字摘要）；
//  2. relevant_memories：针对章节大纲的语义 topK（仅限时间线早于目标章节）；
//  3. foreshadows：已埋设且未回收的伏笔；
//  4. character_states：每个指定角色最近一次状态事件；
//  5. plot_points：最近 M 章内按重要度排序的情节点。
//
// 组装结果受 ContextMaxChars 预算约束，超出预算时压缩章节全文。
func (s *Service) BuildContext(ctx context.Context, in BuildContextInput) (*ContextBundle, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.ProjectID) == "" {
		return nil, fmt.Errorf("tenant_id and project_id are required")
	}
	if in.CurrentChapter <= 0 {
		return nil, fmt.Errorf("current_chapter must be positive")
	}

	bundle := &ContextBundle{}

	// 1) 最近章节
	recentCount := s.cfg.RecentChapterCount
	if recentCount <= 0 {
		recentCount = 3
	}
	chapters, err := s.chapters.ListRecentWithContent(ctx, in.ProjectID, in.CurrentChapter, recentCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent chapters: %w", err)
	}
	// 仓储按章节号倒序返回，节选按正序排列
	for i := len(chapters) - 1; i >= 0; i-- {
		ch := chapters[i]
		excerpt := ChapterExcerpt{
			ChapterNumber: ch.ChapterNumber,
			Title:         ch.Title,
		}
		if i < recentFullCount {
			excerpt.Content = ch.Content
			excerpt.Full = true
		} else {
			summary := strings.TrimSpace(ch.Summary)
			if summary == "" {
				summary = ch.Content
			}
			excerpt.Content = truncateRunes(summary, recentSummaryRunes)
		}
		bundle.RecentContext = append(bundle.RecentContext, excerpt)
	}

	// 2) 语义相关记忆（可降级）
	if query := strings.TrimSpace(in.ChapterOutline); query != "" {
		result, err := s.Search(ctx, SearchInput{
			TenantID:       in.TenantID,
			ProjectID:      in.ProjectID,
			Query:          query,
			TopK:           s.cfg.SearchTopK,
			BeforeTimeline: in.CurrentChapter,
		})
		if err != nil {
			logger.Warn(ctx, "relevant memory search failed",
				"project_id", in.ProjectID,
				"chapter", in.CurrentChapter,
				"error", err.Error(),
			)
		} else {
			bundle.RelevantMemories = result.Fragments
			bundle.DisabledReason = result.DisabledReason
		}
	}

	// 3) 未回收伏笔
	foreshadows, err := s.fragments.ListPlantedForeshadows(ctx, in.ProjectID, in.CurrentChapter)
	if err != nil {
		return nil, fmt.Errorf("failed to list planted foreshadows: %w", err)
	}
	bundle.Foreshadows = foreshadows

	// 4) 角色最新状态
	states, err := s.fragments.ListLatestCharacterEvents(ctx, in.ProjectID, in.CurrentChapter, in.CharacterNames)
	if err != nil {
		return nil, fmt.Errorf("failed to list character events: %w", err)
	}
	bundle.CharacterStates = states

	// 5) 近期重点情节
	window := s.cfg.PlotPointWindow
	if window <= 0 {
		window = defaultPlotPointWindow
	}
	plotPoints, err := s.fragments.ListTopPlotPoints(ctx, in.ProjectID, in.CurrentChapter, window, defaultPlotPointLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plot points: %w", err)
	}
	bundle.PlotPoints = plotPoints

	s.applyBudget(bundle)
	bundle.Stats = computeStats(bundle)
	return bundle, nil
}

// applyBudget 约束组装结果总字符量：碎片切片天然受 topK 限制，
// 超预算时只压缩章节全文部分。
func (s *Service) applyBudget(bundle *ContextBundle) {
	budget := s.cfg.ContextMaxChars
	if budget <= 0 {
		budget = 6000
	}

	fixed := fragmentsChars(bundle.RelevantMemories) +
		fragmentsChars(bundle.Foreshadows) +
		fragmentsChars(bundle.CharacterStates) +
		fragmentsChars(bundle.PlotPoints)

	fullIdx := make([]int, 0, recentFullCount)
	for i := range bundle.RecentContext {
		if bundle.RecentContext[i].Full {
			fullIdx = append(fullIdx, i)
		} else {
			fixed += len([]rune(bundle.RecentContext[i].Content))
		}
	}
	if len(fullIdx) == 0 {
		return
	}

	remaining := budget - fixed
	if remaining < recentSummaryRunes*len(fullIdx) {
		remaining = recentSummaryRunes * len(fullIdx)
	}
	perChapter := remaining / len(fullIdx)
	for _, i := range fullIdx {
		content := bundle.RecentContext[i].Content
		if len([]rune(content)) > perChapter {
			bundle.RecentContext[i].Content = truncateRunes(content, perChapter)
			bundle.RecentContext[i].Full = false
		}
	}
}

func computeStats(bundle *ContextBundle) ContextStats {
	stats := ContextStats{
		RelevantMemories: fragmentsStat(bundle.RelevantMemories),
		Foreshadows:      fragmentsStat(bundle.Foreshadows),
		CharacterStates:  fragmentsStat(bundle.CharacterStates),
		PlotPoints:       fragmentsStat(bundle.PlotPoints),
	}
	for _, excerpt := range bundle.RecentContext {
		stats.RecentContext.Count++
		stats.RecentContext.Chars += len([]rune(excerpt.Content))
	}
	stats.TotalChars = stats.RecentContext.Chars +
		stats.RelevantMemories.Chars +
		stats.Foreshadows.Chars +
		stats.CharacterStates.Chars +
		stats.PlotPoints.Chars
	return stats
}

func fragmentsStat(fragments []*entity.MemoryFragment) SliceStat {
	return SliceStat{Count: len(fragments), Chars: fragmentsChars(fragments)}
}

func fragmentsChars(fragments []*entity.MemoryFragment) int {
	total := 0
	for _, f := range fragments {
		total += len([]rune(f.Content))
	}
	return total
}

// RenderSections 将各切片渲染为带标签的提示词段落，空切片不输出。
func (b *ContextBundle) RenderSections() string {
	if b == nil {
		return ""
	}
	var sb strings.Builder

	if len(b.RecentContext) > 0 {
		sb.WriteString("【前文回顾】\n")
		for _, excerpt := range b.RecentContext {
			if excerpt.Full {
				fmt.Fprintf(&sb, "第%d章《%s》全文：\n%s\n\n", excerpt.ChapterNumber, excerpt.Title, excerpt.Content)
			} else {
				fmt.Fprintf(&sb, "第%d章《%s》概要：%s\n", excerpt.ChapterNumber, excerpt.Title, excerpt.Content)
			}
		}
		sb.WriteString("\n")
	}

	if len(b.RelevantMemories) > 0 {
		sb.WriteString("【相关记忆】\n")
		for _, frag := range b.RelevantMemories {
			writeFragmentLine(&sb, frag)
		}
		sb.WriteString("\n")
	}

	if len(b.Foreshadows) > 0 {
		sb.WriteString("【未回收伏笔】\n")
		for _, frag := range b.Foreshadows {
			fmt.Fprintf(&sb, "- (第%d章埋设) %s\n", frag.StoryTimeline, frag.Content)
		}
		sb.WriteString("\n")
	}

	if len(b.CharacterStates) > 0 {
		sb.WriteString("【角色最新状态】\n")
		for _, frag := range b.CharacterStates {
			name := ""
			if len(frag.RelatedCharacters) > 0 {
				name = frag.RelatedCharacters[0]
			}
			if name != "" {
				fmt.Fprintf(&sb, "- %s：%s\n", name, frag.Content)
			} else {
				fmt.Fprintf(&sb, "- %s\n", frag.Content)
			}
		}
		sb.WriteString("\n")
	}

	if len(b.PlotPoints) > 0 {
		sb.WriteString("【近期关键情节】\n")
		for _, frag := range b.PlotPoints {
			writeFragmentLine(&sb, frag)
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func writeFragmentLine(sb *strings.Builder, frag *entity.MemoryFragment) {
	if title := strings.TrimSpace(frag.Title); title != "" {
		fmt.Fprintf(sb, "- %s：%s\n", title, frag.Content)
		return
	}
	fmt.Fprintf(sb, "- %s\n", frag.Content)
}
