// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/application/tool"
	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
)

// PluginHandler 工具插件处理器
type PluginHandler struct {
	scope    Scope
	plugins  repository.ToolPluginRepository
	registry *tool.Registry
}

// NewPluginHandler 创建工具插件处理器
func NewPluginHandler(scope Scope, plugins repository.ToolPluginRepository, registry *tool.Registry) *PluginHandler {
	return &PluginHandler{scope: scope, plugins: plugins, registry: registry}
}

// ListPlugins 获取租户全部插件
// @Summary 获取插件列表
// @Tags Plugins
// @Produce json
// @Success 200 {object} dto.Response[dto.PluginListResponse]
// @Router /v1/plugins [get]
func (h *PluginHandler) ListPlugins(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}

	var plugins []*entity.ToolPlugin
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		plugins, err = h.plugins.ListByTenant(ctx)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询插件列表失败"))
		return
	}
	dto.Success(c, dto.ToPluginListResponse(plugins))
}

// CreatePlugin 注册插件
// @Summary 注册工具插件
// @Tags Plugins
// @Accept json
// @Produce json
// @Param request body dto.CreatePluginRequest true "注册插件请求"
// @Success 201 {object} dto.Response[dto.PluginResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/plugins [post]
func (h *PluginHandler) CreatePlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req dto.CreatePluginRequest
	if !bindJSON(c, &req) {
		return
	}

	plugin := req.ToPlugin(tenantID)
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		existing, err := h.plugins.GetByName(ctx, plugin.PluginName)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.ErrConflict.WithDetail("同名插件已存在: " + plugin.PluginName)
		}
		if err := h.plugins.Create(ctx, plugin); err != nil {
			return err
		}
		if plugin.Enabled {
			// 加载失败不阻断注册，状态与错误已写回插件行
			if lerr := h.registry.Load(ctx, plugin); lerr != nil {
				logger.Warn(ctx, "plugin load failed on create",
					"plugin", plugin.PluginName,
					"error", lerr.Error(),
				)
			}
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToPluginResponse(plugin))
}

// SimpleCreatePlugin 通过标准 mcpServers 配置 JSON 注册插件，同名插件更新而非报错
// @Summary 快捷注册工具插件
// @Tags Plugins
// @Accept json
// @Produce json
// @Param request body dto.SimpleCreatePluginRequest true "mcpServers 配置"
// @Success 201 {object} dto.Response[dto.PluginResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/plugins/simple [post]
func (h *PluginHandler) SimpleCreatePlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var req dto.SimpleCreatePluginRequest
	if !bindJSON(c, &req) {
		return
	}
	parsed, err := req.ParsePlugin(tenantID)
	if err != nil {
		dto.Fail(c, err)
		return
	}

	var (
		plugin  *entity.ToolPlugin
		created bool
	)
	err = h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		existing, err := h.plugins.GetByName(ctx, parsed.PluginName)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Transport = parsed.Transport
			existing.URL = parsed.URL
			existing.Headers = parsed.Headers
			existing.Command = parsed.Command
			existing.Args = parsed.Args
			existing.Env = parsed.Env
			existing.Enabled = parsed.Enabled
			existing.UpdatedAt = time.Now()
			plugin = existing
			if err := h.plugins.Update(ctx, plugin); err != nil {
				return err
			}
		} else {
			plugin = parsed
			created = true
			if err := h.plugins.Create(ctx, plugin); err != nil {
				return err
			}
		}
		if plugin.Enabled {
			if lerr := h.registry.Load(ctx, plugin); lerr != nil {
				logger.Warn(ctx, "plugin load failed on simple create",
					"plugin", plugin.PluginName,
					"error", lerr.Error(),
				)
			}
		} else {
			h.registry.Unload(ctx, tenantID, plugin.PluginName)
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	if created {
		dto.Created(c, dto.ToPluginResponse(plugin))
		return
	}
	dto.Success(c, dto.ToPluginResponse(plugin))
}

// GetPlugin 获取插件详情
// @Summary 获取插件详情
// @Tags Plugins
// @Produce json
// @Param plid path string true "插件 ID"
// @Success 200 {object} dto.Response[dto.PluginResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid} [get]
func (h *PluginHandler) GetPlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}

	var plugin *entity.ToolPlugin
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		plugin, err = h.plugins.GetByID(ctx, pluginID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询插件失败"))
		return
	}
	if plugin == nil {
		dto.Fail(c, apperrors.ErrPluginNotFound)
		return
	}
	dto.Success(c, dto.ToPluginResponse(plugin))
}

// UpdatePlugin 更新插件配置，启用状态与端点变化会同步到注册表
// @Summary 更新插件
// @Tags Plugins
// @Accept json
// @Produce json
// @Param plid path string true "插件 ID"
// @Param request body dto.UpdatePluginRequest true "更新插件请求"
// @Success 200 {object} dto.Response[dto.PluginResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid} [put]
func (h *PluginHandler) UpdatePlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}
	var req dto.UpdatePluginRequest
	if !bindJSON(c, &req) {
		return
	}

	var plugin *entity.ToolPlugin
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		plugin, err = h.plugins.GetByID(ctx, pluginID)
		if err != nil {
			return err
		}
		if plugin == nil {
			return apperrors.ErrPluginNotFound
		}
		req.ApplyToPlugin(plugin)
		if err := h.plugins.Update(ctx, plugin); err != nil {
			return err
		}
		if plugin.Enabled {
			// 端点配置可能已变化，原子替换旧客户端
			if lerr := h.registry.Load(ctx, plugin); lerr != nil {
				logger.Warn(ctx, "plugin reload failed on update",
					"plugin", plugin.PluginName,
					"error", lerr.Error(),
				)
			}
		} else {
			h.registry.Unload(ctx, tenantID, plugin.PluginName)
			plugin.Status = entity.PluginStatusInactive
			return h.plugins.Update(ctx, plugin)
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToPluginResponse(plugin))
}

// DeletePlugin 删除插件并卸载客户端
// @Summary 删除插件
// @Tags Plugins
// @Produce json
// @Param plid path string true "插件 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid} [delete]
func (h *PluginHandler) DeletePlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}

	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		plugin, err := h.plugins.GetByID(ctx, pluginID)
		if err != nil {
			return err
		}
		if plugin == nil {
			return apperrors.ErrPluginNotFound
		}
		h.registry.Unload(ctx, tenantID, plugin.PluginName)
		return h.plugins.Delete(ctx, pluginID)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// TogglePlugin 启用或禁用插件
// @Summary 启用/禁用插件
// @Tags Plugins
// @Produce json
// @Param plid path string true "插件 ID"
// @Param enabled query bool true "启用或禁用"
// @Success 200 {object} dto.Response[dto.PluginResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid}/toggle [post]
func (h *PluginHandler) TogglePlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}
	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		dto.Fail(c, apperrors.ErrInvalidParam.WithDetail("enabled 参数必须为布尔值"))
		return
	}

	var plugin *entity.ToolPlugin
	err = h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		plugin, err = h.plugins.GetByID(ctx, pluginID)
		if err != nil {
			return err
		}
		if plugin == nil {
			return apperrors.ErrPluginNotFound
		}
		plugin.Enabled = enabled
		if enabled {
			if lerr := h.registry.Load(ctx, plugin); lerr != nil {
				logger.Warn(ctx, "plugin load failed on toggle",
					"plugin", plugin.PluginName,
					"error", lerr.Error(),
				)
			}
			// Load 已写回状态，这里仅确保 enabled 落库
			return h.plugins.Update(ctx, plugin)
		}
		h.registry.Unload(ctx, tenantID, plugin.PluginName)
		plugin.Status = entity.PluginStatusInactive
		return h.plugins.Update(ctx, plugin)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToPluginResponse(plugin))
}

// TestPlugin 试调插件工具验证连通性
// @Summary 测试插件
// @Tags Plugins
// @Accept json
// @Produce json
// @Param plid path string true "插件 ID"
// @Param request body dto.TestPluginRequest true "试调请求"
// @Success 200 {object} dto.Response[dto.TestPluginResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid}/test [post]
func (h *PluginHandler) TestPlugin(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}
	var req dto.TestPluginRequest
	if !bindJSON(c, &req) {
		return
	}

	var resp *dto.TestPluginResponse
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		plugin, err := h.plugins.GetByID(ctx, pluginID)
		if err != nil {
			return err
		}
		if plugin == nil {
			return apperrors.ErrPluginNotFound
		}
		if !plugin.Enabled {
			return apperrors.ErrPluginDisabled
		}

		start := time.Now()
		result, err := h.registry.Call(ctx, tenantID, plugin.PluginName, req.ToolName, req.Arguments)
		if err != nil {
			return err
		}
		resp = &dto.TestPluginResponse{
			Result:     result,
			DurationMS: time.Since(start).Milliseconds(),
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, resp)
}

// ListPluginTools 获取插件暴露的工具清单
// @Summary 获取插件工具列表
// @Tags Plugins
// @Produce json
// @Param plid path string true "插件 ID"
// @Success 200 {object} dto.Response[dto.PluginToolsResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/plugins/{plid}/tools [get]
func (h *PluginHandler) ListPluginTools(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginID := dto.BindPluginID(c)
	if !requireParam(c, pluginID, "plid") {
		return
	}

	var resp *dto.PluginToolsResponse
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		plugin, err := h.plugins.GetByID(ctx, pluginID)
		if err != nil {
			return err
		}
		if plugin == nil {
			return apperrors.ErrPluginNotFound
		}
		if !plugin.Enabled {
			return apperrors.ErrPluginDisabled
		}
		tools, err := h.registry.ListTools(ctx, tenantID, plugin.PluginName)
		if err != nil {
			return err
		}
		resp = &dto.PluginToolsResponse{PluginName: plugin.PluginName, Tools: tools}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, resp)
}

// GetPluginMetrics 获取租户已启用插件的调用指标
// @Summary 获取插件调用指标
// @Tags Plugins
// @Produce json
// @Success 200 {object} dto.Response[dto.PluginMetricsResponse]
// @Router /v1/plugins/metrics [get]
func (h *PluginHandler) GetPluginMetrics(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}

	var health []*tool.PluginHealth
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		health, err = h.registry.HealthAll(ctx, tenantID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.PluginMetricsResponse{Plugins: health, Timestamp: time.Now()})
}

// GetPluginHealth 获取租户已启用插件的健康评估
// @Summary 获取插件健康状态
// @Tags Plugins
// @Produce json
// @Success 200 {object} dto.Response[dto.PluginHealthResponse]
// @Router /v1/plugins/health [get]
func (h *PluginHandler) GetPluginHealth(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}

	var health []*tool.PluginHealth
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		health, err = h.registry.HealthAll(ctx, tenantID)
		return err
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.PluginHealthResponse{Plugins: health})
}

// GetCacheStats 获取租户工具列表缓存统计
// @Summary 获取工具缓存统计
// @Tags Plugins
// @Produce json
// @Success 200 {object} dto.Response[dto.CacheStatsResponse]
// @Router /v1/plugins/cache/stats [get]
func (h *PluginHandler) GetCacheStats(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	dto.Success(c, &dto.CacheStatsResponse{
		CacheStats: h.registry.ToolsCacheStats(tenantID),
		Timestamp:  time.Now(),
	})
}

// ClearCache 清理租户工具列表缓存，plugin_name 为空时清理全部
// @Summary 清理工具缓存
// @Tags Plugins
// @Produce json
// @Param plugin_name query string false "插件名称"
// @Success 200 {object} dto.Response[dto.ClearCacheResponse]
// @Router /v1/plugins/cache/clear [post]
func (h *PluginHandler) ClearCache(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	pluginName := c.Query("plugin_name")
	cleared := h.registry.ClearToolsCache(tenantID, pluginName)

	message := "已清理全部工具缓存"
	if pluginName != "" {
		message = "已清理插件 " + pluginName + " 的工具缓存"
	}
	dto.Success(c, &dto.ClearCacheResponse{Cleared: cleared, Message: message})
}
