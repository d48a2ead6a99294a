// Package entity 定义领域实体
package entity

import (
	"time"
)

// AnalysisTaskStatus 分析任务状态
type AnalysisTaskStatus string

const (
	AnalysisTaskStatusPending   AnalysisTaskStatus = "pending"
	AnalysisTaskStatusRunning   AnalysisTaskStatus = "running"
	AnalysisTaskStatusCompleted AnalysisTaskStatus = "completed"
	AnalysisTaskStatusFailed    AnalysisTaskStatus = "failed"
)

// AnalysisTask 后台章节分析任务
// 状态机 pending -> running -> completed/failed，终态不可再变
type AnalysisTask struct {
	ID            string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      string             `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ProjectID     string             `json:"project_id" gorm:"type:uuid;index;not null"`
	ChapterID     string             `json:"chapter_id" gorm:"type:uuid;index;not null"`
	Status        AnalysisTaskStatus `json:"status" gorm:"type:varchar(20);index;default:'pending'"`
	Progress      int                `json:"progress" gorm:"default:0"`
	ErrorMessage  string             `json:"error_message,omitempty" gorm:"type:varchar(500)"`
	AutoRecovered bool               `json:"auto_recovered" gorm:"default:false"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (AnalysisTask) TableName() string {
	return "analysis_tasks"
}

// NewAnalysisTask 创建分析任务
func NewAnalysisTask(tenantID, projectID, chapterID string) *AnalysisTask {
	now := time.Now()
	return &AnalysisTask{
		TenantID:  tenantID,
		ProjectID: projectID,
		ChapterID: chapterID,
		Status:    AnalysisTaskStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal 是否处于终态
func (t *AnalysisTask) IsTerminal() bool {
	return t.Status == AnalysisTaskStatusCompleted || t.Status == AnalysisTaskStatusFailed
}

// Start 进入运行态
func (t *AnalysisTask) Start() {
	now := time.Now()
	t.Status = AnalysisTaskStatusRunning
	t.StartedAt = &now
	t.UpdatedAt = now
}

// Complete 标记完成
func (t *AnalysisTask) Complete() {
	now := time.Now()
	t.Status = AnalysisTaskStatusCompleted
	t.Progress = 100
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// Fail 标记失败
func (t *AnalysisTask) Fail(message string) {
	now := time.Now()
	t.Status = AnalysisTaskStatusFailed
	t.ErrorMessage = truncateRunes(message, 500)
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// ShouldAutoRecover 判断任务是否超时卡死
// running 超过 runningTimeout 或 pending 超过 pendingTimeout 视为卡死
func (t *AnalysisTask) ShouldAutoRecover(now time.Time, runningTimeout, pendingTimeout time.Duration) bool {
	switch t.Status {
	case AnalysisTaskStatusRunning:
		if t.StartedAt == nil {
			return now.Sub(t.CreatedAt) > runningTimeout
		}
		return now.Sub(*t.StartedAt) > runningTimeout
	case AnalysisTaskStatusPending:
		return now.Sub(t.CreatedAt) > pendingTimeout
	default:
		return false
	}
}

// AutoRecover 将卡死任务转为失败态
func (t *AnalysisTask) AutoRecover(message string) {
	t.Fail(message)
	t.AutoRecovered = true
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
