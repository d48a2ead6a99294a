package eino

import "context"

type workflowKey struct{}
type providerKey struct{}

// WithWorkflowProvider 在 Context 中标记当前工作流与模型提供商，
// 供全局 callbacks 在 Span 上打标
func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	ctx = context.WithValue(ctx, workflowKey{}, workflow)
	return context.WithValue(ctx, providerKey{}, provider)
}

// WorkflowFromContext 读取工作流标记，未设置时返回空串
func WorkflowFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workflowKey{}).(string); ok {
		return v
	}
	return ""
}

// ProviderFromContext 读取提供商标记，未设置时返回空串
func ProviderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(providerKey{}).(string); ok {
		return v
	}
	return ""
}
