package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
)

func TestMissingPrerequisiteMessage(t *testing.T) {
	assert.Equal(t, "需要先完成前置章节：第 1 章", MissingPrerequisiteMessage([]int{1}))
	assert.Equal(t, "需要先完成前置章节：第 1 章、第 3 章", MissingPrerequisiteMessage([]int{1, 3}))
}

func TestClampTargetWords(t *testing.T) {
	cfg := &config.GenerationConfig{
		DefaultWordCount: 3000,
		MinWordCount:     500,
		MaxWordCount:     10000,
	}

	assert.Equal(t, 3000, clampTargetWords(0, cfg), "未指定取默认")
	assert.Equal(t, 3000, clampTargetWords(-1, cfg))
	assert.Equal(t, 500, clampTargetWords(100, cfg), "低于下限钳制")
	assert.Equal(t, 10000, clampTargetWords(99999, cfg), "高于上限钳制")
	assert.Equal(t, 2000, clampTargetWords(2000, cfg))

	// 配置缺省时用内置边界
	assert.Equal(t, 3000, clampTargetWords(0, nil))
	assert.Equal(t, 500, clampTargetWords(1, nil))
}

func TestStreamPercent(t *testing.T) {
	assert.Equal(t, 50, streamPercent(100, 0), "无目标字数固定 50")
	assert.Equal(t, 20, streamPercent(0, 3000), "起始 20")
	assert.Equal(t, 55, streamPercent(1500, 3000))
	assert.Equal(t, 90, streamPercent(3000, 3000), "封顶 90")
	assert.Equal(t, 90, streamPercent(9000, 3000))
}

func TestOutlineMaterial(t *testing.T) {
	chapter := &entity.Chapter{Summary: "章节摘要"}

	text, names := outlineMaterial(nil, chapter)
	assert.Equal(t, "章节摘要", text)
	assert.Nil(t, names)

	outline := &entity.Outline{Content: "大纲正文"}
	text, _ = outlineMaterial(outline, chapter)
	assert.Equal(t, "大纲正文", text)

	outline.Structure = &entity.OutlineStructure{
		Content:            "结构化内容",
		CharactersInvolved: []string{"林远", "苏晴"},
	}
	text, names = outlineMaterial(outline, chapter)
	assert.Equal(t, "结构化内容", text)
	assert.Equal(t, []string{"林远", "苏晴"}, names)

	// 大纲为空时回落章节摘要
	empty := &entity.Outline{}
	text, _ = outlineMaterial(empty, chapter)
	assert.Equal(t, "章节摘要", text)
}

func TestCharacterNames(t *testing.T) {
	chars := []*entity.Character{
		{Name: "林远"},
		{Name: "  "},
		nil,
		{Name: "天机阁", IsOrganization: true},
		{Name: "苏晴"},
	}
	assert.Equal(t, []string{"林远", "苏晴"}, characterNames(chars))
}

func TestEscalationHint(t *testing.T) {
	assert.Empty(t, escalationHint(1, 5), "首轮无升级提示")
	hint := escalationHint(2, 5)
	assert.Contains(t, hint, "第 2 次重试")
	assert.Contains(t, hint, "5 个条目")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "你好世", truncateRunes("你好世界", 3), "按 rune 截断")
	assert.Equal(t, "你好", truncateRunes("你好", 10))
	assert.Equal(t, "abc", truncateRunes("abc", 0), "limit 非法时原样返回")
}
