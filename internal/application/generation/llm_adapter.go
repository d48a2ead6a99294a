// Package generation 实现章节、大纲与向导的生成编排
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"novelforge-api/internal/domain/entity"
	apperrors "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

const (
	// 单次阻塞调用的默认超时
	defaultGenerateTimeout = 60 * time.Second

	// DefaultMaxToolRounds 工具调用轮数上限，防止模型无限请求工具
	DefaultMaxToolRounds = 2

	// 插件名与工具名的拼接分隔符（暴露给模型的工具名需要全局唯一）
	toolNameSeparator = "__"
)

// ChatModelProvider 定义编排层对模型工厂的依赖。
type ChatModelProvider interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// ToolDispatcher 定义编排层对工具注册表的最小依赖（port）。
type ToolDispatcher interface {
	// ListActiveTools 返回租户全部可用插件的工具描述
	ListActiveTools(ctx context.Context, tenantID string) ([]BoundTool, error)
	// Call 调用指定插件工具，返回文本结果
	Call(ctx context.Context, tenantID, pluginName, toolName string, arguments map[string]any) (string, error)
}

// BoundTool 插件限定的工具描述
type BoundTool struct {
	PluginName string
	Tool       entity.ToolDescriptor
}

// LLMRequest 一次 LLM 调用的输入
type LLMRequest struct {
	Provider    string
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   *int
	Timeout     time.Duration
}

// LLMResult 阻塞调用结果
type LLMResult struct {
	Content string
	Raw     *schema.Message
}

// ToolCallRecord 单次工具调用记录
type ToolCallRecord struct {
	PluginName string `json:"plugin_name"`
	ToolName   string `json:"tool_name"`
	Arguments  string `json:"arguments"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ToolsResult 带工具轮次的生成结果
type ToolsResult struct {
	Content       string
	ToolCallsMade int
	Records       []ToolCallRecord
}

// ApplyTenantSettings 用租户偏好补齐未显式指定的调用参数。
func (r *LLMRequest) ApplyTenantSettings(settings *entity.TenantSettings) {
	if settings == nil {
		return
	}
	if r.Provider == "" {
		r.Provider = settings.DefaultProvider
	}
	if r.Temperature == nil && settings.DefaultTemperature > 0 {
		t := float32(settings.DefaultTemperature)
		r.Temperature = &t
	}
	if r.MaxTokens == nil && settings.DefaultMaxTokens > 0 {
		mt := settings.DefaultMaxTokens
		r.MaxTokens = &mt
	}
}

// LLMAdapter 统一封装阻塞生成、流式生成与工具轮次。
type LLMAdapter struct {
	provider ChatModelProvider
	tools    ToolDispatcher
}

// NewLLMAdapter 创建 LLM 适配器；tools 可为 nil（禁用工具轮次）。
func NewLLMAdapter(provider ChatModelProvider, tools ToolDispatcher) *LLMAdapter {
	return &LLMAdapter{
		provider: provider,
		tools:    tools,
	}
}

// Generate 阻塞式生成。
// 空内容视为无效响应；传输层错误归一化为 LLM 系列错误码。
func (a *LLMAdapter) Generate(ctx context.Context, req *LLMRequest) (*LLMResult, error) {
	if a == nil || a.provider == nil {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("llm factory not configured")
	}
	chatModel, err := a.provider.Get(ctx, req.Provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	msg, err := chatModel.Generate(callCtx, buildMessages(req), buildModelOptions(req)...)
	providerLabel := providerLabelOf(req.Provider)
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(providerLabel, "", "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.ErrLLMTimeout.WithError(err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, apperrors.ErrCancelled.WithError(err)
		}
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		metrics.LLMCallTotal.WithLabelValues(providerLabel, "", "invalid").Inc()
		return nil, apperrors.ErrLLMInvalidResponse
	}

	metrics.LLMCallTotal.WithLabelValues(providerLabel, "", "success").Inc()
	metrics.LLMCallDuration.WithLabelValues(providerLabel, "").Observe(time.Since(start).Seconds())
	recordTokenUsage(providerLabel, msg)

	return &LLMResult{Content: msg.Content, Raw: msg}, nil
}

// Stream 流式生成，返回底层 StreamReader。
// 流中途失败不重试，由上层编排决定如何处置；消费方取消通过 ctx 传播。
func (a *LLMAdapter) Stream(ctx context.Context, req *LLMRequest) (*schema.StreamReader[*schema.Message], error) {
	if a == nil || a.provider == nil {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("llm factory not configured")
	}
	chatModel, err := a.provider.Get(ctx, req.Provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	reader, err := chatModel.Stream(ctx, buildMessages(req), buildModelOptions(req)...)
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(providerLabelOf(req.Provider), "", "error").Inc()
		if errors.Is(err, context.Canceled) {
			return nil, apperrors.ErrCancelled.WithError(err)
		}
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	return reader, nil
}

// GenerateWithTools 带工具轮次的生成：
//   - 最多 maxRounds 轮工具调用，模型不再请求工具或超轮数后收尾；
//   - 工具调用经注册表分发，单个工具失败不致命（以错误文本回填该轮结果）；
//   - enable=false 或无可用工具时退化为普通 Generate。
func (a *LLMAdapter) GenerateWithTools(ctx context.Context, tenantID string, req *LLMRequest, enable bool, maxRounds int) (*ToolsResult, error) {
	if !enable || a.tools == nil {
		result, err := a.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ToolsResult{Content: result.Content}, nil
	}

	bound, err := a.tools.ListActiveTools(ctx, tenantID)
	if err != nil {
		logger.Warn(ctx, "failed to list tools, fallback to no-tools",
			"tenant_id", tenantID,
			"error", err.Error(),
		)
		bound = nil
	}
	if len(bound) == 0 {
		result, err := a.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ToolsResult{Content: result.Content}, nil
	}

	chatModel, err := a.provider.Get(ctx, req.Provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	toolInfos, routes := buildToolInfos(bound)
	boundModel := chatModel
	if tcm, ok := chatModel.(model.ToolCallingChatModel); ok {
		withTools, bindErr := tcm.WithTools(toolInfos)
		if bindErr == nil && withTools != nil {
			boundModel = withTools
		} else if bindErr != nil {
			logger.Warn(ctx, "failed to bind tools, fallback to no-tools",
				"tenant_id", tenantID,
				"error", bindErr.Error(),
			)
		}
	}

	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}

	messages := buildMessages(req)
	opts := buildModelOptions(req)
	providerLabel := providerLabelOf(req.Provider)
	out := &ToolsResult{}

	for round := 0; ; round++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		msg, genErr := boundModel.Generate(callCtx, messages, opts...)

		// 模型不支持工具时退回基础模型重试一次
		if genErr != nil && isToolsUnsupportedError(genErr) && boundModel != chatModel {
			logger.Warn(ctx, "llm tools not supported, fallback to no-tools",
				"provider", req.Provider,
				"error", genErr.Error(),
			)
			boundModel = chatModel
			msg, genErr = boundModel.Generate(callCtx, messages, opts...)
		}
		cancel()

		if genErr != nil {
			metrics.LLMCallTotal.WithLabelValues(providerLabel, "", "error").Inc()
			if errors.Is(genErr, context.DeadlineExceeded) {
				return nil, apperrors.ErrLLMTimeout.WithError(genErr)
			}
			if errors.Is(genErr, context.Canceled) {
				return nil, apperrors.ErrCancelled.WithError(genErr)
			}
			return nil, apperrors.ErrLLMCallFailed.WithError(genErr)
		}
		if msg == nil {
			return nil, apperrors.ErrLLMInvalidResponse
		}
		metrics.LLMCallTotal.WithLabelValues(providerLabel, "", "success").Inc()
		recordTokenUsage(providerLabel, msg)

		if len(msg.ToolCalls) == 0 || round >= maxRounds {
			if strings.TrimSpace(msg.Content) == "" {
				return nil, apperrors.ErrLLMInvalidResponse
			}
			out.Content = msg.Content
			return out, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			record := a.dispatchToolCall(ctx, tenantID, routes, call)
			out.ToolCallsMade++
			out.Records = append(out.Records, record)

			resultText := record.Result
			if record.Error != "" {
				resultText = fmt.Sprintf(`{"error":%q}`, record.Error)
			}
			messages = append(messages, schema.ToolMessage(resultText, call.ID, schema.WithToolName(call.Function.Name)))
		}
	}
}

// dispatchToolCall 将模型的工具调用路由到对应插件。失败不致命，
// 记录错误后由模型在下一轮自行处理。
func (a *LLMAdapter) dispatchToolCall(ctx context.Context, tenantID string, routes map[string]BoundTool, call schema.ToolCall) ToolCallRecord {
	record := ToolCallRecord{
		ToolName:  call.Function.Name,
		Arguments: call.Function.Arguments,
	}

	route, ok := routes[call.Function.Name]
	if !ok {
		record.Error = fmt.Sprintf("unknown tool: %s", call.Function.Name)
		logger.Warn(ctx, "model requested unknown tool",
			"tenant_id", tenantID,
			"tool", call.Function.Name,
		)
		return record
	}
	record.PluginName = route.PluginName
	record.ToolName = route.Tool.Name

	var args map[string]any
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			record.Error = fmt.Sprintf("invalid tool arguments: %v", err)
			return record
		}
	}

	result, err := a.tools.Call(ctx, tenantID, route.PluginName, route.Tool.Name, args)
	if err != nil {
		record.Error = err.Error()
		logger.Warn(ctx, "tool call failed in generation round",
			"tenant_id", tenantID,
			"plugin", route.PluginName,
			"tool", route.Tool.Name,
			"error", err.Error(),
		)
		return record
	}
	record.Result = result
	return record
}

func buildMessages(req *LLMRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))
	return messages
}

func buildModelOptions(req *LLMRequest) []model.Option {
	opts := make([]model.Option, 0, 2)
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}
	return opts
}

// buildToolInfos 将插件工具描述转换为 Eino 工具元数据，
// 同时建立"模型可见名 → 插件工具"的路由表。
func buildToolInfos(bound []BoundTool) ([]*schema.ToolInfo, map[string]BoundTool) {
	infos := make([]*schema.ToolInfo, 0, len(bound))
	routes := make(map[string]BoundTool, len(bound))

	for _, bt := range bound {
		if strings.TrimSpace(bt.Tool.Name) == "" {
			continue
		}
		exposed := bt.PluginName + toolNameSeparator + bt.Tool.Name
		routes[exposed] = bt

		infos = append(infos, &schema.ToolInfo{
			Name:        exposed,
			Desc:        bt.Tool.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(convertInputSchema(bt.Tool.InputSchema)),
		})
	}
	return infos, routes
}

// convertInputSchema 将 JSON Schema 的顶层 properties 转换为 Eino 参数描述。
// 嵌套结构降级为 object/array 类型声明，细节留在描述文本里由模型理解。
func convertInputSchema(inputSchema map[string]any) map[string]*schema.ParameterInfo {
	params := make(map[string]*schema.ParameterInfo)
	if inputSchema == nil {
		return params
	}

	required := make(map[string]bool)
	if rawRequired, ok := inputSchema["required"].([]any); ok {
		for _, r := range rawRequired {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	properties, ok := inputSchema["properties"].(map[string]any)
	if !ok {
		return params
	}
	for name, rawProp := range properties {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		info := &schema.ParameterInfo{
			Type:     toDataType(prop["type"]),
			Required: required[name],
		}
		if desc, ok := prop["description"].(string); ok {
			info.Desc = desc
		}
		if rawEnum, ok := prop["enum"].([]any); ok {
			for _, e := range rawEnum {
				if s, ok := e.(string); ok {
					info.Enum = append(info.Enum, s)
				}
			}
		}
		if info.Type == schema.Array {
			info.ElemInfo = &schema.ParameterInfo{Type: schema.String}
			if items, ok := prop["items"].(map[string]any); ok {
				info.ElemInfo = &schema.ParameterInfo{Type: toDataType(items["type"])}
			}
		}
		params[name] = info
	}
	return params
}

func toDataType(raw any) schema.DataType {
	t, _ := raw.(string)
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	case "null":
		return schema.Null
	default:
		return schema.String
	}
}

func providerLabelOf(provider string) string {
	if provider == "" {
		return "default"
	}
	return provider
}

func recordTokenUsage(provider string, msg *schema.Message) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	usage := msg.ResponseMeta.Usage
	metrics.LLMTokensUsed.WithLabelValues(provider, "", "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, "", "completion").Add(float64(usage.CompletionTokens))
}

func isToolsUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "tool"):
		return true
	case strings.Contains(msg, "tool") && strings.Contains(msg, "not supported"):
		return true
	default:
		return false
	}
}
