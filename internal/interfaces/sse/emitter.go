package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// ErrStreamClosed 事件流已结束或客户端已断开
var ErrStreamClosed = errors.New("sse stream closed")

// defaultBuffer 事件通道缓冲，吸收消费端的瞬时抖动
const defaultBuffer = 16

// Emitter 事件发送端
//
// 由单个编排器 goroutine 持有并发送，消费端通过 Events 读取。
// 发出终止事件后通道自动关闭。
type Emitter struct {
	ctx    context.Context
	ch     chan Event
	closed atomic.Bool
}

// NewEmitter 创建发送端，ctx 为请求生命周期
func NewEmitter(ctx context.Context) *Emitter {
	return &Emitter{
		ctx: ctx,
		ch:  make(chan Event, defaultBuffer),
	}
}

// Events 事件消费通道
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Send 发送事件
//
// 客户端断开或流已终止时返回 ErrStreamClosed，编排器据此中止并回滚。
func (e *Emitter) Send(ev Event) error {
	if e.closed.Load() {
		return ErrStreamClosed
	}
	select {
	case <-e.ctx.Done():
		e.Close()
		return ErrStreamClosed
	case e.ch <- ev:
		if ev.IsTerminal() {
			e.Close()
		}
		return nil
	}
}

// Progress 发送进度事件
func (e *Emitter) Progress(message string, percent int, level string) error {
	return e.Send(ProgressEvent(message, percent, level))
}

// Chunk 发送内容片段
func (e *Emitter) Chunk(content string) error {
	return e.Send(ChunkEvent(content))
}

// Heartbeat 发送心跳
func (e *Emitter) Heartbeat() error {
	return e.Send(HeartbeatEvent())
}

// Result 发送最终结果
func (e *Emitter) Result(payload any) error {
	return e.Send(ResultEvent(payload))
}

// AnalysisStarted 发送后台分析启动事件
func (e *Emitter) AnalysisStarted(taskID string) error {
	return e.Send(AnalysisStartedEvent(taskID))
}

// Error 发送失败终止事件
func (e *Emitter) Error(code, message string) error {
	return e.Send(ErrorEvent(code, message))
}

// Done 发送正常终止事件
func (e *Emitter) Done() error {
	return e.Send(DoneEvent())
}

// Close 结束事件流，可重复调用
func (e *Emitter) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.ch)
	}
}

// WriteHeaders 设置 SSE 响应头
func WriteHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// Stream 把事件写入响应，直到事件流结束或客户端断开
func Stream(c *gin.Context, events <-chan Event) {
	WriteHeaders(c)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
