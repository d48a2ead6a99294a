package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/domain/entity"
)

func TestFallback(t *testing.T) {
	assert.Equal(t, DefaultUnset, Fallback("", DefaultUnset))
	assert.Equal(t, DefaultGenre, Fallback("  ", DefaultGenre))
	assert.Equal(t, "玄幻", Fallback(" 玄幻 ", DefaultGenre), "非空值去空白后返回")
	assert.Equal(t, DefaultCharacters, Fallback("\n\t", DefaultCharacters))
}

func TestRegistryLoadsAllTemplates(t *testing.T) {
	r := NewRegistry()

	ids := []PromptID{
		PromptWorldV1,
		PromptCharactersBatchV1,
		PromptOutlineCompleteV1,
		PromptOutlineContinueV1,
		PromptChapterGenV1,
		PromptChapterGenContextV1,
		PromptChapterAnalysisV1,
	}
	for _, id := range ids {
		t.Run(string(id), func(t *testing.T) {
			tpl, err := r.ChatTemplate(id)
			require.NoError(t, err)
			require.NotNil(t, tpl)
		})
	}
}

func TestRegistryCachesTemplates(t *testing.T) {
	r := NewRegistry()

	first, err := r.ChatTemplate(PromptWorldV1)
	require.NoError(t, err)
	second, err := r.ChatTemplate(PromptWorldV1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegistryUnknownID(t *testing.T) {
	r := NewRegistry()
	_, err := r.ChatTemplate(PromptID("nonexistent_v9"))
	require.Error(t, err)

	var nilRegistry *Registry
	_, err = nilRegistry.ChatTemplate(PromptWorldV1)
	require.Error(t, err)
}

func testOutlines(n int) []*entity.Outline {
	outlines := make([]*entity.Outline, 0, n)
	for i := 1; i <= n; i++ {
		outlines = append(outlines, &entity.Outline{
			OrderIndex: i,
			Title:      fmt.Sprintf("第%d节", i),
			Content:    fmt.Sprintf("第%d节的大纲正文", i),
		})
	}
	return outlines
}

func TestBuildContinuationContextSmall(t *testing.T) {
	assert.Empty(t, BuildContinuationContext(nil))

	// 节点数不超过近期窗口：无骨架、无概要，只有末尾全文
	got := BuildContinuationContext(testOutlines(2))
	assert.NotContains(t, got, "【整体骨架】")
	assert.NotContains(t, got, "【近期章节概要】")
	assert.Contains(t, got, "【最近章节大纲全文】")
	assert.Contains(t, got, "第1节的大纲正文")
	assert.Contains(t, got, "第2节的大纲正文")
}

func TestBuildContinuationContextMedium(t *testing.T) {
	// 10 节：近期窗口覆盖全部，末 2 节全文，前 8 节概要
	got := BuildContinuationContext(testOutlines(10))
	assert.NotContains(t, got, "【整体骨架】")
	assert.Contains(t, got, "【近期章节概要】")
	assert.Contains(t, got, "- 第8章 第8节：第8节的大纲正文")
	assert.Contains(t, got, "第9章 第9节\n第9节的大纲正文")
	assert.Contains(t, got, "第10章 第10节\n第10节的大纲正文")
	assert.NotContains(t, got, "第8章 第8节\n", "第 8 节只出现在概要层")
}

func TestBuildContinuationContextLarge(t *testing.T) {
	got := BuildContinuationContext(testOutlines(120))

	// 骨架按步长 50 采样：第 1、51、101 节
	require.Contains(t, got, "【整体骨架】")
	assert.Contains(t, got, "- 第1章 第1节")
	assert.Contains(t, got, "- 第51章 第51节")
	assert.Contains(t, got, "- 第101章 第101节")
	assert.NotContains(t, got, "- 第2章 第2节\n")

	// 近期概要覆盖第 101-118 节，末 2 节全文
	assert.Contains(t, got, "- 第110章 第110节：")
	assert.Contains(t, got, "第119节的大纲正文")
	assert.Contains(t, got, "第120节的大纲正文")

	// 三层顺序：骨架在概要前，概要在全文前
	skeleton := strings.Index(got, "【整体骨架】")
	summaries := strings.Index(got, "【近期章节概要】")
	full := strings.Index(got, "【最近章节大纲全文】")
	assert.Less(t, skeleton, summaries)
	assert.Less(t, summaries, full)
}

func TestBuildContinuationContextSummaryTruncation(t *testing.T) {
	outlines := testOutlines(10)
	outlines[5].Content = strings.Repeat("长", 100)

	got := BuildContinuationContext(outlines)
	assert.Contains(t, got, "第6节："+strings.Repeat("长", 50))
	assert.NotContains(t, got, strings.Repeat("长", 51))
}
