package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	errs "novelforge-api/pkg/errors"
)

type scopeTenantKey struct{}

// fakeScope 模拟租户作用域执行器：只在回调内注入租户标记，仓储据此过滤行，
// 标记之外的访问一律报错，等价于行级安全在未设置租户时不放行任何行。
type fakeScope struct {
	reads  []string
	writes []string
}

func (s *fakeScope) Read(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	s.reads = append(s.reads, tenantID)
	return fn(context.WithValue(ctx, scopeTenantKey{}, tenantID))
}

func (s *fakeScope) Write(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	s.writes = append(s.writes, tenantID)
	return fn(context.WithValue(ctx, scopeTenantKey{}, tenantID))
}

func scopedTenant(ctx context.Context) (string, error) {
	tenant, _ := ctx.Value(scopeTenantKey{}).(string)
	if tenant == "" {
		return "", errors.New("仓储访问发生在租户作用域之外")
	}
	return tenant, nil
}

type fakePlugins struct {
	repository.ToolPluginRepository

	byTenant map[string][]*entity.ToolPlugin
	updates  int
}

func pluginsFor(plugins ...*entity.ToolPlugin) *fakePlugins {
	f := &fakePlugins{byTenant: make(map[string][]*entity.ToolPlugin)}
	for _, p := range plugins {
		f.byTenant[p.TenantID] = append(f.byTenant[p.TenantID], p)
	}
	return f
}

func (f *fakePlugins) GetByName(ctx context.Context, name string) (*entity.ToolPlugin, error) {
	tenant, err := scopedTenant(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range f.byTenant[tenant] {
		if p.PluginName == name {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePlugins) Update(ctx context.Context, _ *entity.ToolPlugin) error {
	if _, err := scopedTenant(ctx); err != nil {
		return err
	}
	f.updates++
	return nil
}

func (f *fakePlugins) ListEnabled(ctx context.Context) ([]*entity.ToolPlugin, error) {
	tenant, err := scopedTenant(ctx)
	if err != nil {
		return nil, err
	}
	var out []*entity.ToolPlugin
	for _, p := range f.byTenant[tenant] {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeClient struct {
	tools     []entity.ToolDescriptor
	listCalls int

	callResults []string
	callErrs    []error
	callCount   int

	initErr error
	pingErr error
	closed  bool
}

func (c *fakeClient) Initialize(context.Context) error { return c.initErr }
func (c *fakeClient) Ping(context.Context) error       { return c.pingErr }

func (c *fakeClient) ListTools(context.Context) ([]entity.ToolDescriptor, error) {
	c.listCalls++
	return c.tools, nil
}

func (c *fakeClient) CallTool(context.Context, string, map[string]any) (string, error) {
	i := c.callCount
	c.callCount++
	var err error
	if i < len(c.callErrs) {
		err = c.callErrs[i]
	}
	var text string
	if i < len(c.callResults) {
		text = c.callResults[i]
	}
	return text, err
}

func (c *fakeClient) Close() { c.closed = true }

type fakeFactory struct {
	client *fakeClient
	err    error
	errFor string
}

func (f *fakeFactory) New(p *entity.ToolPlugin) (EndpointClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.errFor != "" && p.PluginName == f.errFor {
		return nil, errors.New("unsupported transport")
	}
	return f.client, nil
}

func enabledPlugin(name string) *entity.ToolPlugin {
	return &entity.ToolPlugin{
		ID:         "plg-1",
		TenantID:   "t-1",
		PluginName: name,
		Transport:  entity.PluginTransportHTTP,
		URL:        "http://plugin.local",
		Enabled:    true,
	}
}

func fastToolConfig() *config.ToolConfig {
	return &config.ToolConfig{
		CallTimeout: time.Second,
		MaxRetries:  3,
		RetryBackoff: config.BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2,
		},
		CacheTTL:             time.Minute,
		MinRequestsForHealth: 4,
		ErrorRateWarning:     0.4,
		ErrorRateCritical:    0.7,
	}
}

func TestLoadMarksStatus(t *testing.T) {
	plugin := enabledPlugin("search")
	repo := pluginsFor(plugin)

	t.Run("探测成功标记 active", func(t *testing.T) {
		r := NewRegistry(&fakeScope{}, repo, &fakeFactory{client: &fakeClient{}}, nil, fastToolConfig())
		require.NoError(t, r.Load(context.Background(), plugin))
		assert.Equal(t, entity.PluginStatusActive, plugin.Status)
		assert.Empty(t, plugin.LastError)
	})

	t.Run("探测失败标记 error 并关闭连接", func(t *testing.T) {
		client := &fakeClient{pingErr: errors.New("connection refused")}
		r := NewRegistry(&fakeScope{}, repo, &fakeFactory{client: client}, nil, fastToolConfig())
		err := r.Load(context.Background(), plugin)
		require.Error(t, err)
		assert.Equal(t, errs.CodeToolUnavailable, errs.AsAppError(err).Code)
		assert.Equal(t, entity.PluginStatusError, plugin.Status)
		assert.True(t, client.closed)
	})

	t.Run("工厂不支持的传输", func(t *testing.T) {
		r := NewRegistry(&fakeScope{}, repo, &fakeFactory{err: errors.New("unsupported transport")}, nil, fastToolConfig())
		err := r.Load(context.Background(), plugin)
		require.Error(t, err)
		assert.Equal(t, errs.CodeInvalidParam, errs.AsAppError(err).Code)
	})

	t.Run("状态写回进入租户写作用域", func(t *testing.T) {
		scope := &fakeScope{}
		r := NewRegistry(scope, repo, &fakeFactory{client: &fakeClient{}}, nil, fastToolConfig())
		require.NoError(t, r.Load(context.Background(), plugin))
		require.NotEmpty(t, scope.writes)
		assert.Equal(t, "t-1", scope.writes[len(scope.writes)-1])
	})
}

func TestCallRetriesWithBackoff(t *testing.T) {
	plugin := enabledPlugin("search")
	client := &fakeClient{
		callErrs:    []error{errors.New("timeout"), errors.New("timeout"), nil},
		callResults: []string{"", "", "晴，23 度"},
	}
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: client}, nil, fastToolConfig())

	text, err := r.Call(context.Background(), "t-1", "search", "weather", map[string]any{"city": "北京"})

	require.NoError(t, err)
	assert.Equal(t, "晴，23 度", text)
	assert.Equal(t, 3, client.callCount, "前两次失败后重试")
}

func TestCallExhaustsRetries(t *testing.T) {
	plugin := enabledPlugin("search")
	client := &fakeClient{
		callErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: client}, nil, fastToolConfig())

	_, err := r.Call(context.Background(), "t-1", "search", "weather", nil)

	require.Error(t, err)
	assert.Equal(t, errs.CodeToolUnavailable, errs.AsAppError(err).Code)
	assert.Equal(t, 3, client.callCount)
}

func TestCallUnknownPlugin(t *testing.T) {
	r := NewRegistry(&fakeScope{}, pluginsFor(), &fakeFactory{client: &fakeClient{}}, nil, fastToolConfig())

	_, err := r.Call(context.Background(), "t-1", "missing", "weather", nil)

	require.Error(t, err)
	assert.Equal(t, errs.CodePluginNotFound, errs.AsAppError(err).Code)
}

func TestCallDisabledPlugin(t *testing.T) {
	plugin := enabledPlugin("search")
	plugin.Enabled = false
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: &fakeClient{}}, nil, fastToolConfig())

	_, err := r.Call(context.Background(), "t-1", "search", "weather", nil)

	require.Error(t, err)
	assert.Equal(t, errs.CodePluginDisabled, errs.AsAppError(err).Code)
}

func TestRetryDelaySchedule(t *testing.T) {
	r := NewRegistry(&fakeScope{}, pluginsFor(), &fakeFactory{}, nil, &config.ToolConfig{
		RetryBackoff: config.BackoffConfig{
			Initial:    time.Second,
			Max:        10 * time.Second,
			Multiplier: 2,
		},
	})

	assert.Equal(t, time.Second, r.retryDelay(1))
	assert.Equal(t, 2*time.Second, r.retryDelay(2))
	assert.Equal(t, 4*time.Second, r.retryDelay(3))
	assert.Equal(t, 10*time.Second, r.retryDelay(5), "退避封顶")
}

func TestListToolsCaching(t *testing.T) {
	plugin := enabledPlugin("search")
	client := &fakeClient{tools: []entity.ToolDescriptor{{Name: "weather"}}}
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: client}, nil, fastToolConfig())

	tools, err := r.ListTools(context.Background(), "t-1", "search")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, 1, client.listCalls)

	// TTL 内命中缓存，不再触达端点
	_, err = r.ListTools(context.Background(), "t-1", "search")
	require.NoError(t, err)
	assert.Equal(t, 1, client.listCalls)

	stats := r.ToolsCacheStats("t-1")
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, int64(1), stats.TotalHits)

	// 失效后重新拉取
	cleared := r.ClearToolsCache("t-1", "search")
	assert.Equal(t, 1, cleared)
	_, err = r.ListTools(context.Background(), "t-1", "search")
	require.NoError(t, err)
	assert.Equal(t, 2, client.listCalls)
}

func TestListActiveToolsSkipsFailingPlugin(t *testing.T) {
	good := enabledPlugin("search")
	bad := enabledPlugin("broken")
	bad.ID = "plg-2"

	client := &fakeClient{tools: []entity.ToolDescriptor{{Name: "weather"}, {Name: "news"}}}
	repo := pluginsFor(good, bad)
	r := NewRegistry(&fakeScope{}, repo, &fakeFactory{client: client, errFor: "broken"}, nil, fastToolConfig())

	// broken 的传输配置不受支持，按加载失败跳过
	bound, err := r.ListActiveTools(context.Background(), "t-1")

	require.NoError(t, err)
	require.Len(t, bound, 2)
	assert.Equal(t, "search", bound[0].PluginName)
	assert.Equal(t, "weather", bound[0].Tool.Name)
}

// 两个租户各自注册插件后，任何路径都只能解析到本租户的插件行。
func TestRegistryTenantIsolation(t *testing.T) {
	mine := enabledPlugin("search")
	other := &entity.ToolPlugin{
		ID:         "plg-2",
		TenantID:   "t-2",
		PluginName: "secrets",
		Transport:  entity.PluginTransportHTTP,
		URL:        "http://other-tenant.local",
		Enabled:    true,
	}
	repo := pluginsFor(mine, other)
	client := &fakeClient{tools: []entity.ToolDescriptor{{Name: "weather"}}, callResults: []string{"ok"}}
	scope := &fakeScope{}
	r := NewRegistry(scope, repo, &fakeFactory{client: client}, nil, fastToolConfig())

	t.Run("聚合只见本租户插件", func(t *testing.T) {
		bound, err := r.ListActiveTools(context.Background(), "t-1")
		require.NoError(t, err)
		require.Len(t, bound, 1)
		assert.Equal(t, "search", bound[0].PluginName)
	})

	t.Run("跨租户按名调用解析不到插件", func(t *testing.T) {
		_, err := r.Call(context.Background(), "t-1", "secrets", "dump", nil)
		require.Error(t, err)
		assert.Equal(t, errs.CodePluginNotFound, errs.AsAppError(err).Code)
	})

	t.Run("健康汇总只覆盖本租户", func(t *testing.T) {
		health, err := r.HealthAll(context.Background(), "t-2")
		require.NoError(t, err)
		require.Len(t, health, 1)
		assert.Equal(t, "secrets", health[0].PluginName)
	})

	t.Run("仓储访问全部携带调用方租户", func(t *testing.T) {
		require.NotEmpty(t, scope.reads)
		for i, tenant := range scope.reads {
			if i < len(scope.reads)-1 {
				assert.Equal(t, "t-1", tenant)
			}
		}
		assert.Equal(t, "t-2", scope.reads[len(scope.reads)-1])
	})
}

func TestEvaluateHealth(t *testing.T) {
	tests := []struct {
		name string
		snap MetricsSnapshot
		want HealthState
	}{
		{"样本不足不判定", MetricsSnapshot{Requests: 3, ErrorRate: 1.0}, HealthStateHealthy},
		{"低失败率", MetricsSnapshot{Requests: 10, ErrorRate: 0.1}, HealthStateHealthy},
		{"进入告警区间", MetricsSnapshot{Requests: 10, ErrorRate: 0.5}, HealthStateWarning},
		{"超过临界阈值", MetricsSnapshot{Requests: 10, ErrorRate: 0.8}, HealthStateDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateHealth(tt.snap, 4, 0.4, 0.7))
		})
	}
}

func TestHealthFromCallOutcomes(t *testing.T) {
	plugin := enabledPlugin("search")
	client := &fakeClient{
		callErrs: []error{
			errors.New("down"), errors.New("down"), errors.New("down"), // 第一次 Call 重试 3 次全败
			nil, // 第二次成功
		},
		callResults: []string{"", "", "", "ok"},
	}
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: client}, nil, fastToolConfig())

	_, _ = r.Call(context.Background(), "t-1", "search", "weather", nil)
	_, err := r.Call(context.Background(), "t-1", "search", "weather", nil)
	require.NoError(t, err)

	health := r.Health("t-1", "search")
	assert.Equal(t, int64(4), health.Metrics.Requests)
	assert.Equal(t, int64(3), health.Metrics.Failures)
	assert.InDelta(t, 0.75, health.Metrics.ErrorRate, 1e-9)
	assert.Equal(t, HealthStateDegraded, health.State)
	assert.Equal(t, "down", health.Metrics.LastError)
}

func TestMetricsSnapshotAverages(t *testing.T) {
	pm := &pluginMetrics{}
	pm.record(100*time.Millisecond, nil)
	pm.record(300*time.Millisecond, errors.New("boom"))

	snap := pm.snapshot()
	assert.Equal(t, int64(2), snap.Requests)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, 200*time.Millisecond, snap.AvgDuration)
	assert.InDelta(t, 0.5, snap.ErrorRate, 1e-9)
	assert.Equal(t, "boom", snap.LastError)
}

func TestUnloadReleasesClient(t *testing.T) {
	plugin := enabledPlugin("search")
	client := &fakeClient{callResults: []string{"ok"}}
	r := NewRegistry(&fakeScope{}, pluginsFor(plugin), &fakeFactory{client: client}, nil, fastToolConfig())

	_, err := r.Call(context.Background(), "t-1", "search", "weather", nil)
	require.NoError(t, err)

	r.Unload(context.Background(), "t-1", "search")
	assert.True(t, client.closed)

	// 幂等：重复卸载不 panic
	r.Unload(context.Background(), "t-1", "search")
}
