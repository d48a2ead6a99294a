// Package dto 提供 HTTP 层数据传输对象
package dto

// DeletedResponse 删除操作响应，按资源统计删除行数
type DeletedResponse struct {
	Deleted map[string]int64 `json:"deleted"`
}

// CountResponse 计数响应
type CountResponse struct {
	Count int64 `json:"count"`
}

// MessageResponse 纯消息响应
type MessageResponse struct {
	Message string `json:"message"`
}
