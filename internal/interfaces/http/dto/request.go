// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// Offset 计算偏移量
func (r *PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// Limit 返回限制数
func (r *PageRequest) Limit() int {
	return r.PageSize
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(c.Query("page_size"), 20),
	}
	req.Normalize()
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindProjectID 从 URI 绑定项目 ID
func BindProjectID(c *gin.Context) string {
	return c.Param("pid")
}

// BindChapterID 从 URI 绑定章节 ID
func BindChapterID(c *gin.Context) string {
	return c.Param("cid")
}

// BindOutlineID 从 URI 绑定大纲节点 ID
func BindOutlineID(c *gin.Context) string {
	return c.Param("oid")
}

// BindCharacterID 从 URI 绑定角色 ID
func BindCharacterID(c *gin.Context) string {
	return c.Param("chid")
}

// BindRelationshipID 从 URI 绑定角色关系 ID
func BindRelationshipID(c *gin.Context) string {
	return c.Param("rid")
}

// BindStyleID 从 URI 绑定写作风格 ID
func BindStyleID(c *gin.Context) string {
	return c.Param("sid")
}

// BindPluginID 从 URI 绑定插件 ID
func BindPluginID(c *gin.Context) string {
	return c.Param("plid")
}

// BindTaskID 从 URI 绑定分析任务 ID
func BindTaskID(c *gin.Context) string {
	return c.Param("tid")
}
