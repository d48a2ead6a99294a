// Package sse 实现生成过程的服务端事件推送
//
// 事件统一编码为单个 JSON 对象，按 data-only 帧写出（data: <json>\n\n）。
// 编排器是唯一的发送方，终止事件（error/done）之后的发送返回 ErrStreamClosed。
package sse

// EventType 事件类型
type EventType string

const (
	// EventProgress 阶段进度
	EventProgress EventType = "progress"
	// EventChunk 生成内容片段
	EventChunk EventType = "chunk"
	// EventHeartbeat 心跳保活
	EventHeartbeat EventType = "heartbeat"
	// EventResult 最终结果，先于 done 发出
	EventResult EventType = "result"
	// EventAnalysisStarted 后台分析任务已创建
	EventAnalysisStarted EventType = "analysis_started"
	// EventError 失败终止
	EventError EventType = "error"
	// EventDone 正常终止
	EventDone EventType = "done"
)

// 进度级别
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Event 单个推送事件
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Percent *int      `json:"percent,omitempty"`
	Level   string    `json:"level,omitempty"`
	Content string    `json:"content,omitempty"`
	Code    string    `json:"code,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// IsTerminal 是否为终止事件
func (e Event) IsTerminal() bool {
	return e.Type == EventError || e.Type == EventDone
}

// ProgressEvent 构造进度事件
func ProgressEvent(message string, percent int, level string) Event {
	if level == "" {
		level = LevelInfo
	}
	return Event{Type: EventProgress, Message: message, Percent: &percent, Level: level}
}

// ChunkEvent 构造内容片段事件
func ChunkEvent(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

// HeartbeatEvent 构造心跳事件
func HeartbeatEvent() Event {
	return Event{Type: EventHeartbeat}
}

// ResultEvent 构造结果事件
func ResultEvent(payload any) Event {
	return Event{Type: EventResult, Payload: payload}
}

// AnalysisStartedEvent 构造后台分析启动事件
func AnalysisStartedEvent(taskID string) Event {
	return Event{Type: EventAnalysisStarted, Payload: map[string]string{"task_id": taskID}}
}

// ErrorEvent 构造失败终止事件
func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

// DoneEvent 构造正常终止事件
func DoneEvent() Event {
	return Event{Type: EventDone}
}
