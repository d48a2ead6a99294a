package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"novelforge-api/pkg/logger"
)

var tracer = otel.Tracer("tool")

const clientName = "novelforge-api"
const clientVersion = "1.0.0"

// Client 同步 HTTP 工具端点客户端
//
// 每次调用发送一个 JSON-RPC 请求并从响应体读取结果，
// 不维护长连接会话。Headers 随插件配置透传（鉴权等）。
type Client struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
	nextID     atomic.Int64

	serverInfo Implementation
}

// NewClient 创建工具端点客户端
func NewClient(endpoint string, headers map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		headers:  headers,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Initialize 执行握手并发送 initialized 通知
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	ctx, span := tracer.Start(ctx, "tool.Client.Initialize")
	defer span.End()

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: Implementation{
			Name:    clientName,
			Version: clientVersion,
		},
	}

	var result InitializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	if result.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("protocol version mismatch: server %s, client %s",
			result.ProtocolVersion, ProtocolVersion)
	}

	c.serverInfo = result.ServerInfo

	if err := c.notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		logger.Warn(ctx, "initialized notification failed",
			"endpoint", c.endpoint,
			"error", err.Error(),
		)
	}

	return &result, nil
}

// Ping 探测端点存活
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", map[string]any{}, nil)
}

// ListTools 列出端点暴露的全部工具
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	ctx, span := tracer.Start(ctx, "tool.Client.ListTools")
	defer span.End()

	var result ToolListResult
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	return result.Tools, nil
}

// CallTool 调用指定工具并返回文本结果
//
// 端点以 isError 标记工具级失败，此时从内容中提取错误文本返回 error。
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "tool.Client.CallTool")
	defer span.End()

	params := CallToolParams{
		Name:      name,
		Arguments: arguments,
	}

	var result CallToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", fmt.Errorf("tools/call failed: %w", err)
	}

	text := result.JoinText()
	if result.IsError {
		if text == "" {
			text = "tool execution failed"
		}
		return "", fmt.Errorf("tool %s: %s", name, text)
	}
	return text, nil
}

// ServerInfo 返回握手获得的服务端标识
func (c *Client) ServerInfo() Implementation {
	return c.serverInfo
}

// Close 释放底层连接
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// call 发送请求并解析响应，result 为 nil 时丢弃返回值
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      &RequestID{Num: &id},
		Method:  method,
	}

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	body, err := c.post(ctx, &req)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}

	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// notify 发送无 ID 通知，不等待业务结果
func (c *Client) notify(ctx context.Context, method string, params any) error {
	req := Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	_, err := c.post(ctx, &req)
	return err
}

func (c *Client) post(ctx context.Context, req *Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
