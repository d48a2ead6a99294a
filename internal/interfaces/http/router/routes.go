// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	// 项目管理
	projects := v1.Group("/projects")
	{
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:pid", h.Project.GetProject)
		projects.PUT("/:pid", h.Project.UpdateProject)
		projects.DELETE("/:pid", h.Project.DeleteProject)
		projects.GET("/:pid/stats", h.Project.GetProjectStats)

		// 项目下的章节
		projects.GET("/:pid/chapters", h.Chapter.ListChapters)
		projects.POST("/:pid/chapters", h.Chapter.CreateChapter)

		// 章节记忆片段
		projects.GET("/:pid/chapters/:cid/memories", h.Memory.ListChapterMemories)
		projects.DELETE("/:pid/chapters/:cid/memories", h.Memory.DeleteChapterMemories)

		// 项目下的大纲
		projects.GET("/:pid/outlines", h.Outline.ListOutlines)
		projects.POST("/:pid/outlines", h.Outline.CreateOutline)
		projects.POST("/:pid/outlines/reorder", h.Outline.ReorderOutlines)
		projects.POST("/:pid/outlines/generate", h.Stream.GenerateOutline) // SSE

		// 项目下的角色与组织
		projects.GET("/:pid/characters", h.Character.ListCharacters)
		projects.POST("/:pid/characters", h.Character.CreateCharacter)
		projects.GET("/:pid/organizations", h.Character.ListOrganizations)
		projects.GET("/:pid/relationships", h.Character.ListRelationships)
		projects.POST("/:pid/relationships", h.Character.UpsertRelationship)

		// 项目下的写作风格
		projects.GET("/:pid/styles", h.Style.ListStyles)
		projects.POST("/:pid/styles", h.Style.CreateStyle)
		projects.PUT("/:pid/default-style", h.Style.SetDefaultStyle)

		// 项目记忆检索
		projects.POST("/:pid/memories/search", h.Memory.SearchMemories)
		projects.POST("/:pid/memories/context", h.Memory.BuildContext)

		// 项目生成历史
		projects.GET("/:pid/histories", h.History.ListHistories)
	}

	// 章节管理
	chapters := v1.Group("/chapters")
	{
		chapters.GET("/:cid", h.Chapter.GetChapter)
		chapters.PUT("/:cid", h.Chapter.UpdateChapter)
		chapters.DELETE("/:cid", h.Chapter.DeleteChapter)
		chapters.GET("/:cid/can-generate", h.Chapter.CanGenerate)
		chapters.GET("/:cid/analysis", h.Chapter.GetAnalysis)
		chapters.POST("/:cid/analyze", h.Chapter.Analyze)
		chapters.POST("/:cid/generate", h.Stream.GenerateChapter) // SSE
	}

	// 大纲管理
	outlines := v1.Group("/outlines")
	{
		outlines.GET("/:oid", h.Outline.GetOutline)
		outlines.PUT("/:oid", h.Outline.UpdateOutline)
		outlines.DELETE("/:oid", h.Outline.DeleteOutline)
	}

	// 角色管理
	characters := v1.Group("/characters")
	{
		characters.GET("/:chid", h.Character.GetCharacter)
		characters.PUT("/:chid", h.Character.UpdateCharacter)
		characters.DELETE("/:chid", h.Character.DeleteCharacter)
	}

	// 角色关系管理
	relationships := v1.Group("/relationships")
	{
		relationships.DELETE("/:rid", h.Character.DeleteRelationship)
	}

	// 写作风格管理
	styles := v1.Group("/styles")
	{
		styles.PUT("/:sid", h.Style.UpdateStyle)
		styles.DELETE("/:sid", h.Style.DeleteStyle)
	}

	// 工具插件管理
	plugins := v1.Group("/plugins")
	{
		plugins.GET("", h.Plugin.ListPlugins)
		plugins.POST("", h.Plugin.CreatePlugin)
		plugins.POST("/simple", h.Plugin.SimpleCreatePlugin)
		plugins.GET("/metrics", h.Plugin.GetPluginMetrics)
		plugins.GET("/health", h.Plugin.GetPluginHealth)
		plugins.GET("/cache/stats", h.Plugin.GetCacheStats)
		plugins.POST("/cache/clear", h.Plugin.ClearCache)
		plugins.GET("/:plid", h.Plugin.GetPlugin)
		plugins.PUT("/:plid", h.Plugin.UpdatePlugin)
		plugins.DELETE("/:plid", h.Plugin.DeletePlugin)
		plugins.POST("/:plid/toggle", h.Plugin.TogglePlugin)
		plugins.POST("/:plid/test", h.Plugin.TestPlugin)
		plugins.GET("/:plid/tools", h.Plugin.ListPluginTools)
	}

	// 项目创建向导（SSE）
	wizard := v1.Group("/wizard")
	{
		wizard.POST("/world", h.Wizard.GenerateWorld)
		wizard.POST("/:pid/characters", h.Wizard.GenerateCharacters)
		wizard.POST("/:pid/outline", h.Wizard.GenerateOutline)
		wizard.POST("/:pid/cleanup", h.Wizard.Cleanup)
	}
}
