// Package tool 维护租户级外部工具插件目录并分发工具调用
//
// 插件按需懒加载，客户端空闲超时或超过 TTL 后由后台巡检回收。
// 调用统计在进程内累积并镜像到 Prometheus，可选地定期落入外部存储。
package tool

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/config"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	errs "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

const (
	defaultCallTimeout     = 60 * time.Second
	defaultProbeTimeout    = 10 * time.Second
	defaultMaxRetries      = 3
	defaultBaseRetryDelay  = time.Second
	defaultMaxRetryDelay   = 10 * time.Second
	defaultRetryMultiplier = 2.0
	defaultCacheTTL        = 10 * time.Minute
	defaultIdleTimeout     = 30 * time.Minute
	defaultClientTTL       = time.Hour
	defaultCleanupInterval = 5 * time.Minute
	defaultMinRequests     = 10
	defaultWarningRate     = 0.4
	defaultCriticalRate    = 0.7

	// unloadGrace 卸载时等待在途调用的宽限期
	unloadGrace = 5 * time.Second
)

// EndpointClient 工具端点连接
type EndpointClient interface {
	Initialize(ctx context.Context) error
	Ping(ctx context.Context) error
	ListTools(ctx context.Context) ([]entity.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
	Close()
}

// ClientFactory 按插件配置创建端点连接，不支持的传输返回错误
type ClientFactory interface {
	New(plugin *entity.ToolPlugin) (EndpointClient, error)
}

// MetricsStore 插件调用统计的外部快照存储
type MetricsStore interface {
	SaveToolMetrics(ctx context.Context, tenantID, pluginName string, snap *MetricsSnapshot) error
}

// TenantScope 租户作用域执行器的最小依赖（port）。
// 插件行的查询与状态写回都必须在租户作用域内执行，RLS 才会生效；
// 流式生成等路径携带的是作用域外的原始请求上下文，不能直接触达仓储。
type TenantScope interface {
	Read(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
	Write(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

// clientEntry 已加载的插件客户端
type clientEntry struct {
	client   EndpointClient
	loadedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
	inflight sync.WaitGroup
}

func (e *clientEntry) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (e *clientEntry) lastUsedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// release 等待在途调用结束后关闭连接，最多等待 grace
func (e *clientEntry) release(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
	e.client.Close()
}

// toolsCacheEntry 工具列表缓存项
type toolsCacheEntry struct {
	tools     []entity.ToolDescriptor
	fetchedAt time.Time
	hits      atomic.Int64
}

// Registry 工具插件注册表
type Registry struct {
	scope   TenantScope
	plugins repository.ToolPluginRepository
	factory ClientFactory
	store   MetricsStore

	callTimeout     time.Duration
	maxRetries      int
	baseRetryDelay  time.Duration
	maxRetryDelay   time.Duration
	retryMultiplier float64
	cacheTTL        time.Duration
	idleTimeout     time.Duration
	clientTTL       time.Duration
	cleanupInterval time.Duration
	minRequests     int
	warningRate     float64
	criticalRate    float64

	mu      sync.RWMutex
	clients map[string]*clientEntry

	cacheMu    sync.RWMutex
	toolsCache map[string]*toolsCacheEntry

	metricsMu sync.Mutex
	metrics   map[string]*pluginMetrics

	loadGroup singleflight.Group

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ generation.ToolDispatcher = (*Registry)(nil)

// NewRegistry 创建插件注册表，store 可为 nil
func NewRegistry(scope TenantScope, plugins repository.ToolPluginRepository, factory ClientFactory, store MetricsStore, cfg *config.ToolConfig) *Registry {
	r := &Registry{
		scope:           scope,
		plugins:         plugins,
		factory:         factory,
		store:           store,
		callTimeout:     defaultCallTimeout,
		maxRetries:      defaultMaxRetries,
		baseRetryDelay:  defaultBaseRetryDelay,
		maxRetryDelay:   defaultMaxRetryDelay,
		retryMultiplier: defaultRetryMultiplier,
		cacheTTL:        defaultCacheTTL,
		idleTimeout:     defaultIdleTimeout,
		clientTTL:       defaultClientTTL,
		cleanupInterval: defaultCleanupInterval,
		minRequests:     defaultMinRequests,
		warningRate:     defaultWarningRate,
		criticalRate:    defaultCriticalRate,
		clients:         make(map[string]*clientEntry),
		toolsCache:      make(map[string]*toolsCacheEntry),
		metrics:         make(map[string]*pluginMetrics),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	r.applyConfig(cfg)
	return r
}

func (r *Registry) applyConfig(cfg *config.ToolConfig) {
	if cfg == nil {
		return
	}
	if cfg.CallTimeout > 0 {
		r.callTimeout = cfg.CallTimeout
	}
	if cfg.MaxRetries > 0 {
		r.maxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff.Initial > 0 {
		r.baseRetryDelay = cfg.RetryBackoff.Initial
	}
	if cfg.RetryBackoff.Max > 0 {
		r.maxRetryDelay = cfg.RetryBackoff.Max
	}
	if cfg.RetryBackoff.Multiplier > 0 {
		r.retryMultiplier = cfg.RetryBackoff.Multiplier
	}
	if cfg.CacheTTL > 0 {
		r.cacheTTL = cfg.CacheTTL
	}
	if cfg.IdleTimeout > 0 {
		r.idleTimeout = cfg.IdleTimeout
	}
	if cfg.ClientTTL > 0 {
		r.clientTTL = cfg.ClientTTL
	}
	if cfg.CleanupInterval > 0 {
		r.cleanupInterval = cfg.CleanupInterval
	}
	if cfg.MinRequestsForHealth > 0 {
		r.minRequests = cfg.MinRequestsForHealth
	}
	if cfg.ErrorRateWarning > 0 {
		r.warningRate = cfg.ErrorRateWarning
	}
	if cfg.ErrorRateCritical > 0 {
		r.criticalRate = cfg.ErrorRateCritical
	}
}

// Start 启动后台回收巡检
func (r *Registry) Start() {
	go r.janitor()
}

// Stop 停止巡检并释放全部客户端
func (r *Registry) Stop() {
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	entries := r.clients
	r.clients = make(map[string]*clientEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.release(unloadGrace)
		metrics.ToolActiveClients.Dec()
	}
}

// Load 构建插件客户端并探测连通性
//
// 幂等，重复加载会原子替换旧客户端。探测结果写回插件状态。
func (r *Registry) Load(ctx context.Context, plugin *entity.ToolPlugin) error {
	client, err := r.factory.New(plugin)
	if err != nil {
		r.markError(ctx, plugin, err)
		return errs.New(errs.CodeInvalidParam, "插件传输配置不受支持").WithError(err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	err = client.Initialize(probeCtx)
	if err == nil {
		err = client.Ping(probeCtx)
	}
	cancel()
	if err != nil {
		client.Close()
		r.markError(ctx, plugin, err)
		return errs.ErrToolUnavailable.WithMessage("插件连通性探测失败").WithError(err)
	}

	plugin.MarkActive()
	if uerr := r.updatePlugin(ctx, plugin); uerr != nil {
		logger.Warn(ctx, "failed to persist plugin status",
			"plugin", plugin.PluginName,
			"error", uerr.Error(),
		)
	}

	key := clientKey(plugin.TenantID, plugin.PluginName)
	now := time.Now()
	entry := &clientEntry{client: client, loadedAt: now, lastUsed: now}

	r.mu.Lock()
	old := r.clients[key]
	r.clients[key] = entry
	r.mu.Unlock()

	r.invalidateTools(key)

	if old != nil {
		go old.release(unloadGrace)
	} else {
		metrics.ToolActiveClients.Inc()
	}

	logger.Info(ctx, "tool plugin loaded",
		"tenant_id", plugin.TenantID,
		"plugin", plugin.PluginName,
	)
	return nil
}

func (r *Registry) markError(ctx context.Context, plugin *entity.ToolPlugin, cause error) {
	plugin.MarkError(cause.Error())
	if err := r.updatePlugin(ctx, plugin); err != nil {
		logger.Warn(ctx, "failed to persist plugin status",
			"plugin", plugin.PluginName,
			"error", err.Error(),
		)
	}
}

// updatePlugin 在租户写作用域内回写插件行。
// 调用方可能已持有作用域（管理端点），嵌套进入是安全的。
func (r *Registry) updatePlugin(ctx context.Context, plugin *entity.ToolPlugin) error {
	return r.scope.Write(ctx, plugin.TenantID, func(ctx context.Context) error {
		return r.plugins.Update(ctx, plugin)
	})
}

// Unload 卸载插件客户端，等待在途调用结束后释放
func (r *Registry) Unload(ctx context.Context, tenantID, pluginName string) {
	key := clientKey(tenantID, pluginName)

	r.mu.Lock()
	entry := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()

	r.invalidateTools(key)

	if entry == nil {
		return
	}
	entry.release(unloadGrace)
	metrics.ToolActiveClients.Dec()
	logger.Info(ctx, "tool plugin unloaded",
		"tenant_id", tenantID,
		"plugin", pluginName,
	)
}

// ListTools 列出插件暴露的工具，结果按 TTL 缓存
func (r *Registry) ListTools(ctx context.Context, tenantID, pluginName string) ([]entity.ToolDescriptor, error) {
	key := clientKey(tenantID, pluginName)
	if tools, ok := r.cachedTools(key, pluginName); ok {
		return tools, nil
	}

	entry, err := r.ensureClient(ctx, tenantID, pluginName)
	if err != nil {
		return nil, err
	}
	entry.inflight.Add(1)
	defer entry.inflight.Done()
	entry.touch()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	tools, err := entry.client.ListTools(callCtx)
	if err != nil {
		return nil, errs.ErrToolUnavailable.WithMessage("获取工具列表失败").WithError(err)
	}

	r.cacheMu.Lock()
	r.toolsCache[key] = &toolsCacheEntry{tools: tools, fetchedAt: time.Now()}
	r.cacheMu.Unlock()

	r.persistDescriptors(ctx, tenantID, pluginName, tools)
	return tools, nil
}

func (r *Registry) cachedTools(key, pluginName string) ([]entity.ToolDescriptor, bool) {
	r.cacheMu.RLock()
	entry := r.toolsCache[key]
	r.cacheMu.RUnlock()
	if entry == nil || time.Since(entry.fetchedAt) > r.cacheTTL {
		return nil, false
	}
	entry.hits.Add(1)
	metrics.ToolCacheHits.WithLabelValues(pluginName).Inc()
	return entry.tools, true
}

// persistDescriptors 把最新工具列表写回插件行，失败仅记录
func (r *Registry) persistDescriptors(ctx context.Context, tenantID, pluginName string, tools []entity.ToolDescriptor) {
	err := r.scope.Write(ctx, tenantID, func(ctx context.Context) error {
		plugin, err := r.plugins.GetByName(ctx, pluginName)
		if err != nil {
			return err
		}
		if plugin == nil {
			return nil
		}
		plugin.Tools = tools
		return r.plugins.Update(ctx, plugin)
	})
	if err != nil {
		logger.Warn(ctx, "failed to persist tool descriptors",
			"plugin", pluginName,
			"error", err.Error(),
		)
	}
}

// Call 调用插件工具，带超时与有界重试
//
// 重试耗尽后返回 ErrToolUnavailable 并携带最后一次失败原因。
func (r *Registry) Call(ctx context.Context, tenantID, pluginName, toolName string, arguments map[string]any) (string, error) {
	entry, err := r.ensureClient(ctx, tenantID, pluginName)
	if err != nil {
		return "", err
	}
	entry.inflight.Add(1)
	defer entry.inflight.Done()
	entry.touch()

	pm := r.metricsFor(tenantID, pluginName)

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", errs.ErrCancelled.WithError(ctx.Err())
			case <-time.After(r.retryDelay(attempt - 1)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		start := time.Now()
		text, callErr := entry.client.CallTool(callCtx, toolName, arguments)
		cancel()
		elapsed := time.Since(start)

		pm.record(elapsed, callErr)
		metrics.ToolCallDuration.WithLabelValues(pluginName, toolName).Observe(elapsed.Seconds())
		if callErr == nil {
			metrics.ToolCallTotal.WithLabelValues(pluginName, toolName, "success").Inc()
			return text, nil
		}
		metrics.ToolCallTotal.WithLabelValues(pluginName, toolName, "failure").Inc()

		lastErr = callErr
		logger.Warn(ctx, "tool call failed",
			"tenant_id", tenantID,
			"plugin", pluginName,
			"tool", toolName,
			"attempt", attempt,
			"error", callErr.Error(),
		)
		if ctx.Err() != nil {
			break
		}
	}

	return "", errs.ErrToolUnavailable.
		WithDetail(fmt.Sprintf("plugin=%s tool=%s", pluginName, toolName)).
		WithError(lastErr)
}

// retryDelay 指数退避，第 retry 次重试前的等待时长
func (r *Registry) retryDelay(retry int) time.Duration {
	delay := time.Duration(float64(r.baseRetryDelay) * math.Pow(r.retryMultiplier, float64(retry-1)))
	if delay > r.maxRetryDelay {
		delay = r.maxRetryDelay
	}
	return delay
}

// ListActiveTools 汇总租户全部已启用插件的工具，供生成前置调用绑定
//
// 单个插件失败不阻断汇总，跳过并记录。
func (r *Registry) ListActiveTools(ctx context.Context, tenantID string) ([]generation.BoundTool, error) {
	plugins, err := r.listEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var bound []generation.BoundTool
	for _, plugin := range plugins {
		tools, err := r.ListTools(ctx, tenantID, plugin.PluginName)
		if err != nil {
			logger.Warn(ctx, "skip plugin tools",
				"plugin", plugin.PluginName,
				"error", err.Error(),
			)
			continue
		}
		for _, t := range tools {
			bound = append(bound, generation.BoundTool{PluginName: plugin.PluginName, Tool: t})
		}
	}
	return bound, nil
}

// listEnabled 在租户读作用域内查询已启用插件
func (r *Registry) listEnabled(ctx context.Context, tenantID string) ([]*entity.ToolPlugin, error) {
	var plugins []*entity.ToolPlugin
	err := r.scope.Read(ctx, tenantID, func(ctx context.Context) error {
		var rerr error
		plugins, rerr = r.plugins.ListEnabled(ctx)
		return rerr
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStoreUnavailable, "查询启用插件失败")
	}
	return plugins, nil
}

// Health 评估单个插件的健康状态
func (r *Registry) Health(tenantID, pluginName string) *PluginHealth {
	snap := r.metricsFor(tenantID, pluginName).snapshot()
	return &PluginHealth{
		PluginName: pluginName,
		State:      evaluateHealth(snap, r.minRequests, r.warningRate, r.criticalRate),
		Metrics:    snap,
	}
}

// HealthAll 评估租户已启用插件的健康状态
func (r *Registry) HealthAll(ctx context.Context, tenantID string) ([]*PluginHealth, error) {
	plugins, err := r.listEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]*PluginHealth, 0, len(plugins))
	for _, plugin := range plugins {
		out = append(out, r.Health(tenantID, plugin.PluginName))
	}
	return out, nil
}

// ensureClient 返回已加载的客户端，未加载时按需加载
func (r *Registry) ensureClient(ctx context.Context, tenantID, pluginName string) (*clientEntry, error) {
	key := clientKey(tenantID, pluginName)

	r.mu.RLock()
	entry := r.clients[key]
	r.mu.RUnlock()
	if entry != nil {
		return entry, nil
	}

	_, err, _ := r.loadGroup.Do(key, func() (interface{}, error) {
		r.mu.RLock()
		loaded := r.clients[key]
		r.mu.RUnlock()
		if loaded != nil {
			return nil, nil
		}

		var plugin *entity.ToolPlugin
		err := r.scope.Read(ctx, tenantID, func(ctx context.Context) error {
			var rerr error
			plugin, rerr = r.plugins.GetByName(ctx, pluginName)
			return rerr
		})
		if err != nil {
			return nil, errs.ErrStoreUnavailable.WithError(err)
		}
		if plugin == nil {
			return nil, errs.ErrPluginNotFound
		}
		if !plugin.Enabled {
			return nil, errs.ErrPluginDisabled
		}
		// 连通性探测不占用数据库事务，状态写回由 Load 内部另行进入作用域
		return nil, r.Load(ctx, plugin)
	})
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry = r.clients[key]
	r.mu.RUnlock()
	if entry == nil {
		return nil, errs.ErrToolUnavailable.WithMessage("插件客户端未就绪")
	}
	return entry, nil
}

func (r *Registry) metricsFor(tenantID, pluginName string) *pluginMetrics {
	key := clientKey(tenantID, pluginName)
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	pm := r.metrics[key]
	if pm == nil {
		pm = &pluginMetrics{}
		r.metrics[key] = pm
	}
	return pm
}

// CacheEntryStats 单个工具缓存条目的统计
type CacheEntryStats struct {
	PluginName string    `json:"plugin_name"`
	ToolCount  int       `json:"tool_count"`
	Hits       int64     `json:"hits"`
	FetchedAt  time.Time `json:"fetched_at"`
	Expired    bool      `json:"expired"`
}

// CacheStats 租户工具缓存统计
type CacheStats struct {
	TotalEntries int               `json:"total_entries"`
	TotalHits    int64             `json:"total_hits"`
	CacheTTL     time.Duration     `json:"cache_ttl"`
	Entries      []CacheEntryStats `json:"entries"`
}

// ToolsCacheStats 汇总租户工具列表缓存的命中统计
func (r *Registry) ToolsCacheStats(tenantID string) *CacheStats {
	prefix := tenantID + ":"
	stats := &CacheStats{CacheTTL: r.cacheTTL, Entries: []CacheEntryStats{}}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for key, entry := range r.toolsCache {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		hits := entry.hits.Load()
		stats.TotalEntries++
		stats.TotalHits += hits
		stats.Entries = append(stats.Entries, CacheEntryStats{
			PluginName: strings.TrimPrefix(key, prefix),
			ToolCount:  len(entry.tools),
			Hits:       hits,
			FetchedAt:  entry.fetchedAt,
			Expired:    time.Since(entry.fetchedAt) > r.cacheTTL,
		})
	}
	return stats
}

// ClearToolsCache 清理租户工具列表缓存，pluginName 为空时清理租户全部条目
func (r *Registry) ClearToolsCache(tenantID, pluginName string) int {
	if pluginName != "" {
		r.invalidateTools(clientKey(tenantID, pluginName))
		return 1
	}

	prefix := tenantID + ":"
	cleared := 0
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	for key := range r.toolsCache {
		if strings.HasPrefix(key, prefix) {
			delete(r.toolsCache, key)
			cleared++
		}
	}
	return cleared
}

func (r *Registry) invalidateTools(key string) {
	r.cacheMu.Lock()
	delete(r.toolsCache, key)
	r.cacheMu.Unlock()
}

func (r *Registry) janitor() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
			r.persistMetrics()
		}
	}
}

// sweep 回收空闲超时或超过 TTL 的客户端
func (r *Registry) sweep() {
	now := time.Now()

	type victim struct {
		key    string
		entry  *clientEntry
		reason string
	}
	var victims []victim

	r.mu.Lock()
	for key, entry := range r.clients {
		switch {
		case now.Sub(entry.lastUsedAt()) > r.idleTimeout:
			victims = append(victims, victim{key, entry, "idle"})
		case now.Sub(entry.loadedAt) > r.clientTTL:
			victims = append(victims, victim{key, entry, "ttl"})
		}
	}
	for _, v := range victims {
		delete(r.clients, v.key)
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, v := range victims {
		r.invalidateTools(v.key)
		v.entry.release(unloadGrace)
		metrics.ToolActiveClients.Dec()
		logger.Info(ctx, "tool client evicted",
			"key", v.key,
			"reason", v.reason,
		)
	}
}

// persistMetrics 把调用统计快照写入外部存储
func (r *Registry) persistMetrics() {
	if r.store == nil {
		return
	}

	r.metricsMu.Lock()
	snaps := make(map[string]MetricsSnapshot, len(r.metrics))
	for key, pm := range r.metrics {
		snaps[key] = pm.snapshot()
	}
	r.metricsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for key, snap := range snaps {
		if snap.Requests == 0 {
			continue
		}
		tenantID, pluginName, ok := splitClientKey(key)
		if !ok {
			continue
		}
		if err := r.store.SaveToolMetrics(ctx, tenantID, pluginName, &snap); err != nil {
			logger.Warn(ctx, "failed to persist tool metrics",
				"plugin", pluginName,
				"error", err.Error(),
			)
		}
	}
}

func clientKey(tenantID, pluginName string) string {
	return tenantID + ":" + pluginName
}

func splitClientKey(key string) (string, string, bool) {
	i := strings.Index(key, ":")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
