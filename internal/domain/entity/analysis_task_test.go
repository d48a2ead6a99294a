package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisTaskLifecycle(t *testing.T) {
	task := NewAnalysisTask("t-1", "p-1", "ch-1")
	assert.Equal(t, AnalysisTaskStatusPending, task.Status)
	assert.False(t, task.IsTerminal())

	task.Start()
	assert.Equal(t, AnalysisTaskStatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)
	assert.False(t, task.IsTerminal())

	task.Complete()
	assert.Equal(t, AnalysisTaskStatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.IsTerminal())
}

func TestAnalysisTaskFailTruncatesMessage(t *testing.T) {
	task := NewAnalysisTask("t-1", "p-1", "ch-1")
	task.Fail(strings.Repeat("错", 600))

	assert.Equal(t, AnalysisTaskStatusFailed, task.Status)
	assert.Len(t, []rune(task.ErrorMessage), 500)
	assert.True(t, task.IsTerminal())
}

func TestShouldAutoRecover(t *testing.T) {
	now := time.Now()
	runningTimeout := time.Minute
	pendingTimeout := 2 * time.Minute

	t.Run("running 超时", func(t *testing.T) {
		started := now.Add(-90 * time.Second)
		task := &AnalysisTask{Status: AnalysisTaskStatusRunning, StartedAt: &started}
		assert.True(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})

	t.Run("running 未超时", func(t *testing.T) {
		started := now.Add(-30 * time.Second)
		task := &AnalysisTask{Status: AnalysisTaskStatusRunning, StartedAt: &started}
		assert.False(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})

	t.Run("running 缺少启动时间按创建时间判定", func(t *testing.T) {
		task := &AnalysisTask{Status: AnalysisTaskStatusRunning, CreatedAt: now.Add(-2 * time.Minute)}
		assert.True(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})

	t.Run("pending 超时", func(t *testing.T) {
		task := &AnalysisTask{Status: AnalysisTaskStatusPending, CreatedAt: now.Add(-3 * time.Minute)}
		assert.True(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})

	t.Run("pending 未超时", func(t *testing.T) {
		task := &AnalysisTask{Status: AnalysisTaskStatusPending, CreatedAt: now.Add(-time.Minute)}
		assert.False(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})

	t.Run("终态不判定", func(t *testing.T) {
		task := &AnalysisTask{Status: AnalysisTaskStatusFailed, CreatedAt: now.Add(-time.Hour)}
		assert.False(t, task.ShouldAutoRecover(now, runningTimeout, pendingTimeout))
	})
}

func TestAutoRecover(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	task := &AnalysisTask{Status: AnalysisTaskStatusRunning, StartedAt: &started}

	task.AutoRecover("任务超时（超过1分钟未完成，已自动恢复）")

	assert.Equal(t, AnalysisTaskStatusFailed, task.Status)
	assert.True(t, task.AutoRecovered)
	assert.Contains(t, task.ErrorMessage, "自动恢复")
	require.NotNil(t, task.CompletedAt)
}
