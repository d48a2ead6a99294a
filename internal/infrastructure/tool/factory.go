package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	apptool "novelforge-api/internal/application/tool"
	"novelforge-api/internal/domain/entity"
)

// ErrStdioUnsupported stdio 传输尚未接入分发
var ErrStdioUnsupported = errors.New("stdio transport is not supported")

// Factory 按插件配置创建应用层端点客户端
type Factory struct {
	timeout time.Duration
}

// NewFactory 创建工具客户端工厂，timeout 为底层 HTTP 超时
func NewFactory(timeout time.Duration) *Factory {
	return &Factory{timeout: timeout}
}

var _ apptool.ClientFactory = (*Factory)(nil)

// New 创建端点客户端
func (f *Factory) New(plugin *entity.ToolPlugin) (apptool.EndpointClient, error) {
	switch plugin.Transport {
	case entity.PluginTransportHTTP:
		if plugin.URL == "" {
			return nil, fmt.Errorf("plugin %s: url is required for http transport", plugin.PluginName)
		}
		return &endpointClient{client: NewClient(plugin.URL, plugin.Headers, f.timeout)}, nil
	case entity.PluginTransportStdio:
		return nil, fmt.Errorf("plugin %s: %w", plugin.PluginName, ErrStdioUnsupported)
	default:
		return nil, fmt.Errorf("plugin %s: unknown transport %q", plugin.PluginName, plugin.Transport)
	}
}

// endpointClient 把 JSON-RPC 客户端适配为应用层端口
type endpointClient struct {
	client *Client
}

func (e *endpointClient) Initialize(ctx context.Context) error {
	_, err := e.client.Initialize(ctx)
	return err
}

func (e *endpointClient) Ping(ctx context.Context) error {
	return e.client.Ping(ctx)
}

func (e *endpointClient) ListTools(ctx context.Context) ([]entity.ToolDescriptor, error) {
	tools, err := e.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, entity.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out, nil
}

func (e *endpointClient) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	return e.client.CallTool(ctx, name, arguments)
}

func (e *endpointClient) Close() {
	e.client.Close()
}
