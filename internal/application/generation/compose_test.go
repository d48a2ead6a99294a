package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/domain/entity"
	workflowprompt "novelforge-api/internal/workflow/prompt"
)

func TestBuildCharactersInfo(t *testing.T) {
	t.Run("空清单返回缺省值", func(t *testing.T) {
		assert.Equal(t, workflowprompt.DefaultCharacters, buildCharactersInfo(nil))
		assert.Equal(t, workflowprompt.DefaultCharacters, buildCharactersInfo([]*entity.Character{nil, {Name: " "}}))
	})

	t.Run("按类型标注并拼装要素", func(t *testing.T) {
		got := buildCharactersInfo([]*entity.Character{
			{Name: "林远", CharacterType: entity.CharacterTypeProtagonist, Personality: "冷静", Motivation: "寻找真相"},
			{Name: "幽冥子", CharacterType: entity.CharacterTypeAntagonist},
			{Name: "天机阁", IsOrganization: true, Background: "江湖情报组织"},
		})

		assert.Contains(t, got, "- 林远（主角）：性格：冷静；动机：寻找真相")
		assert.Contains(t, got, "- 幽冥子（反派）")
		assert.Contains(t, got, "- 天机阁（组织）：背景：江湖情报组织")
	})

	t.Run("要素超长截断", func(t *testing.T) {
		got := buildCharactersInfo([]*entity.Character{
			{Name: "林远", Personality: strings.Repeat("稳", 100)},
		})
		assert.Contains(t, got, strings.Repeat("稳", 60))
		assert.NotContains(t, got, strings.Repeat("稳", 61))
	})
}

func TestBuildWorldContext(t *testing.T) {
	got := buildWorldContext(&entity.Project{
		TimePeriod: "架空王朝",
		Location:   "",
	})

	assert.Contains(t, got, "时间背景：架空王朝")
	assert.Contains(t, got, "地理位置："+workflowprompt.DefaultUnset)
	assert.Contains(t, got, "氛围基调："+workflowprompt.DefaultUnset)
	assert.Contains(t, got, "世界规则："+workflowprompt.DefaultUnset)
}

func TestBuildStyleGuidance(t *testing.T) {
	assert.Empty(t, buildStyleGuidance(nil))

	got := buildStyleGuidance(&entity.WritingStyle{
		Name:       "冷峻写实",
		Tone:       "克制",
		PromptHint: "多用短句",
	})
	assert.Equal(t, "风格：冷峻写实\n基调：克制\n多用短句", got)
}

func TestCharacterTypeLabel(t *testing.T) {
	assert.Equal(t, "主角", characterTypeLabel(entity.CharacterTypeProtagonist))
	assert.Equal(t, "反派", characterTypeLabel(entity.CharacterTypeAntagonist))
	assert.Equal(t, "配角", characterTypeLabel(entity.CharacterTypeSupporting))
}

func TestFormatPrompt(t *testing.T) {
	system, user, err := formatPrompt(context.Background(), workflowprompt.PromptWorldV1, map[string]any{
		"title":        "雪夜归人",
		"genre":        "悬疑",
		"theme":        "救赎",
		"description":  "一封匿名信引发的连环事件",
		"requirements": "无",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, system)
	assert.Contains(t, user, "雪夜归人")
}

func TestCollectToolReferenceNoPlugins(t *testing.T) {
	d := &Deps{
		Tools: &fakeDispatcher{},
		LLM:   NewLLMAdapter(&fakeProvider{model: &fakeChatModel{}}, nil),
	}

	ref, err := collectToolReference(context.Background(), d, "t-1", "", "查一下背景设定")

	require.NoError(t, err)
	assert.Empty(t, ref, "无可用插件时不注入参考资料")
}

func TestCollectToolReferenceNoSuccessfulCalls(t *testing.T) {
	toolCall := schema.ToolCall{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: "search__weather", Arguments: "{}"},
	}
	cm := &fakeChatModel{
		responses: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{toolCall}),
			schema.AssistantMessage("没查到任何资料", nil),
		},
	}
	dispatcher := &fakeDispatcher{
		bound:   []BoundTool{{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}}},
		callErr: assertableError("plugin down"),
	}
	d := &Deps{
		Tools: dispatcher,
		LLM:   NewLLMAdapter(&fakeProvider{model: cm}, dispatcher),
	}

	ref, err := collectToolReference(context.Background(), d, "t-1", "", "查一下背景设定")

	require.NoError(t, err)
	assert.Empty(t, ref, "工具全部失败时不注入参考资料")
}

func TestCollectToolReferenceSuccess(t *testing.T) {
	toolCall := schema.ToolCall{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: "search__weather", Arguments: `{"city":"北京"}`},
	}
	cm := &fakeChatModel{
		responses: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{toolCall}),
			schema.AssistantMessage("- 北京今日晴，适合室外场景", nil),
		},
	}
	dispatcher := &fakeDispatcher{
		bound:   []BoundTool{{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}}},
		results: map[string]string{"weather": "晴，23 度"},
	}
	d := &Deps{
		Tools: dispatcher,
		LLM:   NewLLMAdapter(&fakeProvider{model: cm}, dispatcher),
	}

	ref, err := collectToolReference(context.Background(), d, "t-1", "", "查一下天气设定")

	require.NoError(t, err)
	assert.Equal(t, "- 北京今日晴，适合室外场景", ref)
}

// 工具调用没发生但模型直接给出内容时也视为无参考
func TestCollectToolReferenceModelSkipsTools(t *testing.T) {
	cm := &fakeChatModel{
		responses: []*schema.Message{schema.AssistantMessage("模型直接回答", nil)},
	}
	dispatcher := &fakeDispatcher{
		bound: []BoundTool{{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}}},
	}
	d := &Deps{
		Tools: dispatcher,
		LLM:   NewLLMAdapter(&fakeProvider{model: cm}, dispatcher),
	}

	ref, err := collectToolReference(context.Background(), d, "t-1", "", "查资料")

	require.NoError(t, err)
	assert.Empty(t, ref)
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
