package redis

import (
	"context"
	"time"

	apptool "novelforge-api/internal/application/tool"
)

// toolMetricsTTL 快照过期时间，覆盖两个巡检周期即可
const toolMetricsTTL = 15 * time.Minute

// ToolMetricsStore 把插件调用统计快照落入 Redis
type ToolMetricsStore struct {
	cache *Cache
}

// NewToolMetricsStore 创建快照存储
func NewToolMetricsStore(cache *Cache) *ToolMetricsStore {
	return &ToolMetricsStore{cache: cache}
}

var _ apptool.MetricsStore = (*ToolMetricsStore)(nil)

// SaveToolMetrics 写入快照
func (s *ToolMetricsStore) SaveToolMetrics(ctx context.Context, tenantID, pluginName string, snap *apptool.MetricsSnapshot) error {
	return s.cache.Set(ctx, ToolMetricsKey(tenantID, pluginName), snap, toolMetricsTTL)
}
