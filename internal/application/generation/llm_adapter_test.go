package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/domain/entity"
	errs "novelforge-api/pkg/errors"
)

type fakeChatModel struct {
	responses []*schema.Message
	errs      []error
	calls     int

	lastMessages []*schema.Message
	boundTools   []*schema.ToolInfo
	streamItems  []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	m.lastMessages = msgs
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return nil, errors.New("no more responses")
}

func (m *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray(m.streamItems), nil
}

func (m *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.boundTools = tools
	return m, nil
}

type fakeProvider struct {
	model *fakeChatModel
	err   error
}

func (p *fakeProvider) Get(context.Context, string) (model.BaseChatModel, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.model, nil
}

type fakeDispatcher struct {
	bound   []BoundTool
	listErr error

	results map[string]string
	callErr error
	called  []string
}

func (d *fakeDispatcher) ListActiveTools(context.Context, string) ([]BoundTool, error) {
	return d.bound, d.listErr
}

func (d *fakeDispatcher) Call(_ context.Context, _, pluginName, toolName string, _ map[string]any) (string, error) {
	d.called = append(d.called, pluginName+"/"+toolName)
	if d.callErr != nil {
		return "", d.callErr
	}
	return d.results[toolName], nil
}

func TestGenerateSuccess(t *testing.T) {
	cm := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("生成结果", nil)}}
	a := NewLLMAdapter(&fakeProvider{model: cm}, nil)

	result, err := a.Generate(context.Background(), &LLMRequest{
		System: "你是小说作家",
		Prompt: "写一段开头",
	})

	require.NoError(t, err)
	assert.Equal(t, "生成结果", result.Content)
	require.Len(t, cm.lastMessages, 2)
	assert.Equal(t, schema.System, cm.lastMessages[0].Role)
	assert.Equal(t, schema.User, cm.lastMessages[1].Role)
}

func TestGenerateEmptyContentIsInvalid(t *testing.T) {
	cm := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("   ", nil)}}
	a := NewLLMAdapter(&fakeProvider{model: cm}, nil)

	_, err := a.Generate(context.Background(), &LLMRequest{Prompt: "写一段"})

	require.Error(t, err)
	assert.Equal(t, errs.CodeLLMInvalidResponse, errs.AsAppError(err).Code)
}

func TestGenerateProviderFailure(t *testing.T) {
	a := NewLLMAdapter(&fakeProvider{err: errors.New("provider not configured")}, nil)

	_, err := a.Generate(context.Background(), &LLMRequest{Prompt: "写一段"})

	require.Error(t, err)
	assert.Equal(t, errs.CodeLLMCallFailed, errs.AsAppError(err).Code)
}

func TestGenerateWithToolsDisabledFallsBack(t *testing.T) {
	cm := &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage("无工具结果", nil)}}

	t.Run("未启用", func(t *testing.T) {
		a := NewLLMAdapter(&fakeProvider{model: cm}, &fakeDispatcher{})
		cm.calls = 0
		out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, false, 2)
		require.NoError(t, err)
		assert.Equal(t, "无工具结果", out.Content)
		assert.Zero(t, out.ToolCallsMade)
	})

	t.Run("未挂注册表", func(t *testing.T) {
		a := NewLLMAdapter(&fakeProvider{model: cm}, nil)
		cm.calls = 0
		out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, true, 2)
		require.NoError(t, err)
		assert.Equal(t, "无工具结果", out.Content)
	})

	t.Run("无可用工具", func(t *testing.T) {
		a := NewLLMAdapter(&fakeProvider{model: cm}, &fakeDispatcher{})
		cm.calls = 0
		out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, true, 2)
		require.NoError(t, err)
		assert.Equal(t, "无工具结果", out.Content)
	})

	t.Run("列举工具失败降级", func(t *testing.T) {
		a := NewLLMAdapter(&fakeProvider{model: cm}, &fakeDispatcher{listErr: errors.New("store down")})
		cm.calls = 0
		out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, true, 2)
		require.NoError(t, err)
		assert.Equal(t, "无工具结果", out.Content)
	})
}

func TestGenerateWithToolsRoundTrip(t *testing.T) {
	toolCall := schema.ToolCall{
		ID: "call-1",
		Function: schema.FunctionCall{
			Name:      "search__weather",
			Arguments: `{"city":"北京"}`,
		},
	}
	cm := &fakeChatModel{
		responses: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{toolCall}),
			schema.AssistantMessage("今天北京晴，适合出门。", nil),
		},
	}
	dispatcher := &fakeDispatcher{
		bound: []BoundTool{
			{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}},
		},
		results: map[string]string{"weather": "晴，23 度"},
	}
	a := NewLLMAdapter(&fakeProvider{model: cm}, dispatcher)

	out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写天气"}, true, 2)

	require.NoError(t, err)
	assert.Equal(t, "今天北京晴，适合出门。", out.Content)
	assert.Equal(t, 1, out.ToolCallsMade)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "search", out.Records[0].PluginName)
	assert.Equal(t, "weather", out.Records[0].ToolName)
	assert.Equal(t, "晴，23 度", out.Records[0].Result)
	assert.Equal(t, []string{"search/weather"}, dispatcher.called)

	// 第二轮消息应包含助手的工具请求与工具结果
	require.GreaterOrEqual(t, len(cm.lastMessages), 3)
	assert.Equal(t, schema.Tool, cm.lastMessages[len(cm.lastMessages)-1].Role)

	// 绑定给模型的工具名需带插件前缀
	require.Len(t, cm.boundTools, 1)
	assert.Equal(t, "search__weather", cm.boundTools[0].Name)
}

func TestGenerateWithToolsUnknownToolNotFatal(t *testing.T) {
	toolCall := schema.ToolCall{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: "ghost__tool", Arguments: "{}"},
	}
	cm := &fakeChatModel{
		responses: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{toolCall}),
			schema.AssistantMessage("跳过工具后的结果", nil),
		},
	}
	a := NewLLMAdapter(&fakeProvider{model: cm}, &fakeDispatcher{
		bound: []BoundTool{{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}}},
	})

	out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, true, 2)

	require.NoError(t, err)
	assert.Equal(t, "跳过工具后的结果", out.Content)
	require.Len(t, out.Records, 1)
	assert.Contains(t, out.Records[0].Error, "unknown tool")
}

func TestGenerateWithToolsFailedCallRecorded(t *testing.T) {
	toolCall := schema.ToolCall{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: "search__weather", Arguments: `{"city":"北京"}`},
	}
	cm := &fakeChatModel{
		responses: []*schema.Message{
			schema.AssistantMessage("", []schema.ToolCall{toolCall}),
			schema.AssistantMessage("工具失败后的兜底结果", nil),
		},
	}
	a := NewLLMAdapter(&fakeProvider{model: cm}, &fakeDispatcher{
		bound:   []BoundTool{{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather"}}},
		callErr: errors.New("plugin down"),
	})

	out, err := a.GenerateWithTools(context.Background(), "t-1", &LLMRequest{Prompt: "写"}, true, 2)

	require.NoError(t, err, "单个工具失败不应中断生成")
	assert.Equal(t, "工具失败后的兜底结果", out.Content)
	require.Len(t, out.Records, 1)
	assert.Contains(t, out.Records[0].Error, "plugin down")
}

func TestApplyTenantSettings(t *testing.T) {
	req := &LLMRequest{}
	req.ApplyTenantSettings(&entity.TenantSettings{
		DefaultProvider:    "deepseek",
		DefaultTemperature: 0.8,
		DefaultMaxTokens:   2048,
	})

	assert.Equal(t, "deepseek", req.Provider)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.8, float64(*req.Temperature), 1e-6)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 2048, *req.MaxTokens)

	// 显式指定的参数不被覆盖
	temp := float32(0.2)
	req = &LLMRequest{Provider: "openai", Temperature: &temp}
	req.ApplyTenantSettings(&entity.TenantSettings{DefaultProvider: "deepseek", DefaultTemperature: 0.9})
	assert.Equal(t, "openai", req.Provider)
	assert.InDelta(t, 0.2, float64(*req.Temperature), 1e-6)

	req.ApplyTenantSettings(nil)
}

func TestBuildToolInfos(t *testing.T) {
	infos, routes := buildToolInfos([]BoundTool{
		{PluginName: "search", Tool: entity.ToolDescriptor{Name: "weather", Description: "查询天气"}},
		{PluginName: "search", Tool: entity.ToolDescriptor{Name: "  "}},
		{PluginName: "wiki", Tool: entity.ToolDescriptor{Name: "lookup"}},
	})

	require.Len(t, infos, 2, "空名工具被跳过")
	assert.Equal(t, "search__weather", infos[0].Name)
	assert.Equal(t, "查询天气", infos[0].Desc)
	assert.Equal(t, "wiki__lookup", infos[1].Name)

	route, ok := routes["search__weather"]
	require.True(t, ok)
	assert.Equal(t, "search", route.PluginName)
	assert.Equal(t, "weather", route.Tool.Name)
}

func TestConvertInputSchema(t *testing.T) {
	params := convertInputSchema(map[string]any{
		"required": []any{"city"},
		"properties": map[string]any{
			"city":  map[string]any{"type": "string", "description": "城市名"},
			"days":  map[string]any{"type": "integer"},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
			"level": map[string]any{"type": "string", "enum": []any{"low", "high"}},
		},
	})

	require.Len(t, params, 4)
	assert.Equal(t, schema.String, params["city"].Type)
	assert.True(t, params["city"].Required)
	assert.Equal(t, "城市名", params["city"].Desc)
	assert.Equal(t, schema.Integer, params["days"].Type)
	assert.False(t, params["days"].Required)
	assert.Equal(t, schema.Array, params["tags"].Type)
	require.NotNil(t, params["tags"].ElemInfo)
	assert.Equal(t, schema.Number, params["tags"].ElemInfo.Type)
	assert.Equal(t, []string{"low", "high"}, params["level"].Enum)

	assert.Empty(t, convertInputSchema(nil))
}

func TestIsToolsUnsupportedError(t *testing.T) {
	assert.True(t, isToolsUnsupportedError(errors.New("Unknown parameter: 'tools'")))
	assert.True(t, isToolsUnsupportedError(errors.New("tool calls not supported by this model")))
	assert.False(t, isToolsUnsupportedError(errors.New("rate limit exceeded")))
	assert.False(t, isToolsUnsupportedError(nil))
}
