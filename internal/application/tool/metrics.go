package tool

import (
	"sync"
	"time"
)

// HealthState 插件健康状态
type HealthState string

const (
	// HealthStateHealthy 正常
	HealthStateHealthy HealthState = "healthy"
	// HealthStateWarning 失败率进入告警区间
	HealthStateWarning HealthState = "warning"
	// HealthStateDegraded 失败率超过临界阈值，建议绕过
	HealthStateDegraded HealthState = "degraded"
)

// MetricsSnapshot 单个插件的调用统计快照
type MetricsSnapshot struct {
	Requests    int64         `json:"requests"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	ErrorRate   float64       `json:"error_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastCallAt  time.Time     `json:"last_call_at"`
	LastError   string        `json:"last_error,omitempty"`
}

// PluginHealth 健康评估结果
type PluginHealth struct {
	PluginName string          `json:"plugin_name"`
	State      HealthState     `json:"state"`
	Metrics    MetricsSnapshot `json:"metrics"`
}

// pluginMetrics 进程内的插件调用统计，Prometheus 指标为其镜像
type pluginMetrics struct {
	mu            sync.Mutex
	requests      int64
	successes     int64
	failures      int64
	totalDuration time.Duration
	lastCallAt    time.Time
	lastError     string
}

func (m *pluginMetrics) record(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.totalDuration += duration
	m.lastCallAt = time.Now()
	if err != nil {
		m.failures++
		m.lastError = err.Error()
	} else {
		m.successes++
	}
}

func (m *pluginMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Requests:   m.requests,
		Successes:  m.successes,
		Failures:   m.failures,
		LastCallAt: m.lastCallAt,
		LastError:  m.lastError,
	}
	if m.requests > 0 {
		snap.ErrorRate = float64(m.failures) / float64(m.requests)
		snap.AvgDuration = m.totalDuration / time.Duration(m.requests)
	}
	return snap
}

// evaluateHealth 按阈值评估健康状态
//
// 调用数不足 minRequests 时不做判定，返回 healthy。
func evaluateHealth(snap MetricsSnapshot, minRequests int, warning, critical float64) HealthState {
	if snap.Requests < int64(minRequests) {
		return HealthStateHealthy
	}
	if snap.ErrorRate >= critical {
		return HealthStateDegraded
	}
	if snap.ErrorRate >= warning {
		return HealthStateWarning
	}
	return HealthStateHealthy
}
