package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/domain/entity"
	errs "novelforge-api/pkg/errors"
)

func TestParseAnalysisPayload(t *testing.T) {
	t.Run("直接解析", func(t *testing.T) {
		p, err := parseAnalysisPayload(`{"summary":"概要","pacing":"fast"}`)
		require.NoError(t, err)
		assert.Equal(t, "概要", p.Summary)
		assert.Equal(t, "fast", p.Pacing)
	})

	t.Run("剥离代码块后解析", func(t *testing.T) {
		raw := "```json\n{\"summary\":\"概要\"}\n```"
		p, err := parseAnalysisPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, "概要", p.Summary)
	})

	t.Run("夹杂文本时截取 JSON", func(t *testing.T) {
		raw := "分析结果如下：{\"summary\":\"概要\",\"dialogue_ratio\":0.4}"
		p, err := parseAnalysisPayload(raw)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, p.DialogueRatio, 1e-9)
	})

	t.Run("空输出", func(t *testing.T) {
		_, err := parseAnalysisPayload("   ")
		require.Error(t, err)
		assert.Equal(t, errs.CodeAnalysisParseFailed, errs.AsAppError(err).Code)
	})

	t.Run("非 JSON", func(t *testing.T) {
		_, err := parseAnalysisPayload("这章写得不错")
		require.Error(t, err)
	})
}

func testChapter() *entity.Chapter {
	return &entity.Chapter{
		ID:            "ch-1",
		ProjectID:     "p-1",
		ChapterNumber: 3,
		Title:         "雪夜",
		Content:       "林远推开门，寒风卷着雪花涌入。他发现桌上放着一封没有署名的信。",
	}
}

func TestDeriveFragmentsRules(t *testing.T) {
	chapter := testChapter()
	p := &analysisPayload{
		Summary: "林远收到匿名信",
		Hooks: []entity.AnalysisHook{
			{Type: "悬念", Content: "匿名信", Strength: 8, Position: "结尾", Keyword: "没有署名的信"},
			{Type: "悬念", Content: "弱钩子", Strength: 5},
		},
		Foreshadows: []entity.AnalysisForeshadow{
			{Type: "planted", Content: "信的来历", Strength: 6, Keyword: "一封没有署名的信"},
			{Type: "resolved", Content: "此前的脚印之谜", Strength: 7, ReferenceChapter: 1},
		},
		PlotPoints: []entity.AnalysisPlotPoint{
			{Type: "转折", Content: "收到信", Impact: "引出主线", Importance: 0.8, Keyword: "信"},
			{Type: "铺垫", Content: "低权重情节", Importance: 0.3},
		},
		CharacterStates: []entity.AnalysisCharacterState{
			{Name: "林远", Before: "平静", After: "警觉", Psychology: "隐隐不安"},
		},
		Conflict: &entity.AnalysisConflict{Level: 8, Description: "与匿名者的对峙", Parties: []string{"林远", "匿名者"}, Types: []string{"悬念"}},
	}

	fragments := deriveFragments("t-1", chapter, p)

	byType := map[entity.MemoryType][]*entity.MemoryFragment{}
	for _, f := range fragments {
		byType[f.MemoryType] = append(byType[f.MemoryType], f)
	}

	// 概要：固定重要度 0.6，时间线为章节号
	require.Len(t, byType[entity.MemoryTypeChapterSummary], 1)
	summary := byType[entity.MemoryTypeChapterSummary][0]
	assert.Equal(t, "林远收到匿名信", summary.Content)
	assert.InDelta(t, 0.6, summary.Importance, 1e-9)
	assert.Equal(t, 3, summary.StoryTimeline)

	// 钩子：强度 < 6 被丢弃
	require.Len(t, byType[entity.MemoryTypeHook], 1)
	hook := byType[entity.MemoryTypeHook][0]
	assert.InDelta(t, 0.8, hook.Importance, 1e-9)
	assert.Contains(t, hook.Content, "匿名信")

	// 伏笔：planted/resolved 均保留并标记状态
	require.Len(t, byType[entity.MemoryTypeForeshadow], 2)
	states := []int{
		byType[entity.MemoryTypeForeshadow][0].IsForeshadow,
		byType[entity.MemoryTypeForeshadow][1].IsForeshadow,
	}
	assert.Contains(t, states, entity.ForeshadowPlanted)
	assert.Contains(t, states, entity.ForeshadowResolved)

	// 情节点：重要度 < 0.6 被丢弃；冲突强度 >= 7 并入情节点
	require.Len(t, byType[entity.MemoryTypePlotPoint], 2)
	var plotContents []string
	for _, f := range byType[entity.MemoryTypePlotPoint] {
		plotContents = append(plotContents, f.Content)
	}
	assert.Contains(t, strings.Join(plotContents, "|"), "影响: 引出主线")
	assert.Contains(t, strings.Join(plotContents, "|"), "重要冲突")

	// 角色状态：固定重要度 0.7，关联角色名
	require.Len(t, byType[entity.MemoryTypeCharacterEvent], 1)
	cs := byType[entity.MemoryTypeCharacterEvent][0]
	assert.InDelta(t, 0.7, cs.Importance, 1e-9)
	assert.Equal(t, []string{"林远"}, cs.RelatedCharacters)
	assert.Contains(t, cs.Content, "平静 → 警觉")
	assert.Contains(t, cs.Content, "隐隐不安")
}

func TestDeriveFragmentsConflictBelowThreshold(t *testing.T) {
	p := &analysisPayload{
		Summary:  "概要",
		Conflict: &entity.AnalysisConflict{Level: 6, Description: "小摩擦"},
	}
	fragments := deriveFragments("t-1", testChapter(), p)
	for _, f := range fragments {
		assert.NotContains(t, f.Content, "小摩擦", "强度不足的冲突不应入库")
	}
}

func TestSummaryContentFallbacks(t *testing.T) {
	// 摘要优先
	p := &analysisPayload{Summary: "  概要  "}
	assert.Equal(t, "概要", summaryContent(p, "正文"))

	// 其次前三个情节点拼接
	p = &analysisPayload{
		PlotPoints: []entity.AnalysisPlotPoint{
			{Content: "一"}, {Content: "二"}, {Content: "三"}, {Content: "四"},
		},
	}
	assert.Equal(t, "一；二；三", summaryContent(p, "正文"))

	// 最后回落正文前 300 字
	long := strings.Repeat("字", 400)
	got := summaryContent(&analysisPayload{}, long)
	assert.Equal(t, strings.Repeat("字", 300)+"...", got)

	assert.Empty(t, summaryContent(&analysisPayload{}, "  "))
}

func TestStrengthScore(t *testing.T) {
	assert.InDelta(t, 0.8, strengthScore(8), 1e-9)
	assert.InDelta(t, 0.5, strengthScore(0), 1e-9, "缺省按 5 处理")
	assert.InDelta(t, 0.5, strengthScore(-3), 1e-9)
	assert.InDelta(t, 1.0, strengthScore(15), 1e-9, "超过 10 封顶")
}

func TestLocateKeyword(t *testing.T) {
	content := "林远推开门，寒风卷着雪花涌入。"

	t.Run("精确匹配返回 rune 位置", func(t *testing.T) {
		pos, length := locateKeyword(content, "寒风")
		assert.Equal(t, 6, pos)
		assert.Equal(t, 2, length)
	})

	t.Run("去标点降级匹配", func(t *testing.T) {
		pos, length := locateKeyword(content, "推开门寒风")
		assert.GreaterOrEqual(t, pos, 0)
		assert.Equal(t, 5, length)
	})

	t.Run("长关键词前缀匹配", func(t *testing.T) {
		longContent := "他在日记里写道今天遇到了一个改变命运的人那个人递来一把伞"
		keyword := "今天遇到了一个改变命运的人那个不存在尾巴"
		pos, length := locateKeyword(longContent, keyword)
		assert.Equal(t, 7, pos)
		assert.Equal(t, 15, length)
	})

	t.Run("全部失败返回哨兵值", func(t *testing.T) {
		pos, length := locateKeyword(content, "不存在的关键词")
		assert.Equal(t, -1, pos)
		assert.Zero(t, length)
	})

	t.Run("空输入", func(t *testing.T) {
		pos, _ := locateKeyword("", "关键词")
		assert.Equal(t, -1, pos)
		pos, _ = locateKeyword(content, "")
		assert.Equal(t, -1, pos)
	})
}
