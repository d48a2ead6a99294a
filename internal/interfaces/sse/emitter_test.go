package sse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(e *Emitter) []Event {
	var out []Event
	for ev := range e.Events() {
		out = append(out, ev)
	}
	return out
}

func TestEmitterOrderingAndAutoClose(t *testing.T) {
	e := NewEmitter(context.Background())

	require.NoError(t, e.Progress("开始生成", 20, ""))
	require.NoError(t, e.Chunk("第一段"))
	require.NoError(t, e.Heartbeat())
	require.NoError(t, e.Result(map[string]string{"chapter_id": "ch-1"}))
	require.NoError(t, e.Done())

	events := drain(e)
	require.Len(t, events, 5)
	assert.Equal(t, EventProgress, events[0].Type)
	assert.Equal(t, "开始生成", events[0].Message)
	require.NotNil(t, events[0].Percent)
	assert.Equal(t, 20, *events[0].Percent)
	assert.Equal(t, LevelInfo, events[0].Level, "级别缺省为 info")
	assert.Equal(t, EventChunk, events[1].Type)
	assert.Equal(t, "第一段", events[1].Content)
	assert.Equal(t, EventHeartbeat, events[2].Type)
	assert.Equal(t, EventResult, events[3].Type)
	assert.Equal(t, EventDone, events[4].Type)
}

func TestEmitterRejectsAfterTerminal(t *testing.T) {
	e := NewEmitter(context.Background())

	require.NoError(t, e.Error("5001", "生成失败"))

	assert.ErrorIs(t, e.Chunk("迟到的内容"), ErrStreamClosed)
	assert.ErrorIs(t, e.Done(), ErrStreamClosed)

	events := drain(e)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "5001", events[0].Code)
}

func TestEmitterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEmitter(ctx)

	require.NoError(t, e.Chunk("片段"))
	cancel()

	// 缓冲仍有空间，但上下文取消后发送应失败并关闭流
	var err error
	for i := 0; i < defaultBuffer+1; i++ {
		if err = e.Chunk("片段"); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NotPanics(t, func() { drain(e) }, "通道应已关闭")
}

func TestEmitterCloseIdempotent(t *testing.T) {
	e := NewEmitter(context.Background())
	e.Close()
	assert.NotPanics(t, e.Close)
	assert.ErrorIs(t, e.Heartbeat(), ErrStreamClosed)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, ErrorEvent("5001", "失败").IsTerminal())
	assert.True(t, DoneEvent().IsTerminal())
	assert.False(t, ChunkEvent("内容").IsTerminal())
	assert.False(t, HeartbeatEvent().IsTerminal())
}

func TestEventJSONShape(t *testing.T) {
	data, err := json.Marshal(ChunkEvent("内容"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chunk","content":"内容"}`, string(data), "空字段不输出")

	data, err = json.Marshal(AnalysisStartedEvent("task-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"analysis_started","payload":{"task_id":"task-1"}}`, string(data))

	data, err = json.Marshal(ProgressEvent("进行中", 0, LevelWarning))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"percent":0`, "percent 为指针，零值也应输出")
}
