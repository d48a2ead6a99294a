// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/internal/interfaces/http/dto"
	apperrors "novelforge-api/pkg/errors"
)

// CharacterHandler 角色处理器，组织作为 is_organization=true 的角色行管理
type CharacterHandler struct {
	scope         Scope
	projects      repository.ProjectRepository
	characters    repository.CharacterRepository
	relationships repository.CharacterRelationshipRepository
	relationTypes repository.RelationshipTypeRepository
	organizations repository.OrganizationRepository
	orgMembers    repository.OrganizationMemberRepository
}

// NewCharacterHandler 创建角色处理器
func NewCharacterHandler(
	scope Scope,
	projects repository.ProjectRepository,
	characters repository.CharacterRepository,
	relationships repository.CharacterRelationshipRepository,
	relationTypes repository.RelationshipTypeRepository,
	organizations repository.OrganizationRepository,
	orgMembers repository.OrganizationMemberRepository,
) *CharacterHandler {
	return &CharacterHandler{
		scope:         scope,
		projects:      projects,
		characters:    characters,
		relationships: relationships,
		relationTypes: relationTypes,
		organizations: organizations,
		orgMembers:    orgMembers,
	}
}

// CreateCharacter 创建角色；组织角色同步补建组织行
// @Summary 创建角色
// @Tags Characters
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.CreateCharacterRequest true "创建角色请求"
// @Success 201 {object} dto.Response[dto.CharacterResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/characters [post]
func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.CreateCharacterRequest
	if !bindJSON(c, &req) {
		return
	}

	var character *entity.Character
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperrors.ErrProjectNotFound
		}

		dup, err := h.characters.GetByName(ctx, projectID, req.Name)
		if err != nil {
			return err
		}
		if dup != nil {
			return apperrors.ErrConflict.WithDetail("角色名已存在：" + req.Name)
		}

		character = req.ToCharacterEntity(projectID)
		if err := h.characters.Create(ctx, character); err != nil {
			return err
		}
		if character.IsOrganization {
			org := &entity.Organization{
				ProjectID:        projectID,
				CharacterID:      character.ID,
				Name:             character.Name,
				Description:      character.Background,
				OrganizationType: character.OrganizationType,
			}
			if err := h.organizations.Create(ctx, org); err != nil {
				return err
			}
		}

		project.CharacterCount++
		return h.projects.Update(ctx, project)
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToCharacterResponse(character))
}

// ListCharacters 获取项目角色列表
// @Summary 获取角色列表
// @Tags Characters
// @Produce json
// @Param pid path string true "项目 ID"
// @Param character_type query string false "角色类型"
// @Param is_organization query bool false "仅组织 / 仅角色"
// @Success 200 {object} dto.Response[dto.CharacterListResponse]
// @Router /v1/projects/{pid}/characters [get]
func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	filter := &repository.CharacterFilter{
		CharacterType: entity.CharacterType(c.Query("character_type")),
	}
	if raw := c.Query("is_organization"); raw != "" {
		v := strings.EqualFold(raw, "true") || raw == "1"
		filter.IsOrganization = &v
	}

	var characters []*entity.Character
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		characters, err = h.characters.ListByProject(ctx, projectID, filter)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询角色列表失败"))
		return
	}
	dto.Success(c, dto.ToCharacterListResponse(characters))
}

// GetCharacter 获取角色详情
// @Summary 获取角色详情
// @Tags Characters
// @Produce json
// @Param chid path string true "角色 ID"
// @Success 200 {object} dto.Response[dto.CharacterResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/characters/{chid} [get]
func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	characterID := dto.BindCharacterID(c)
	if !requireParam(c, characterID, "chid") {
		return
	}

	var character *entity.Character
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		character, err = h.characters.GetByID(ctx, characterID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询角色失败"))
		return
	}
	if character == nil {
		dto.Fail(c, apperrors.ErrCharacterNotFound)
		return
	}
	dto.Success(c, dto.ToCharacterResponse(character))
}

// UpdateCharacter 更新角色
// @Summary 更新角色
// @Tags Characters
// @Accept json
// @Produce json
// @Param chid path string true "角色 ID"
// @Param request body dto.UpdateCharacterRequest true "更新角色请求"
// @Success 200 {object} dto.Response[dto.CharacterResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/characters/{chid} [put]
func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	characterID := dto.BindCharacterID(c)
	if !requireParam(c, characterID, "chid") {
		return
	}
	var req dto.UpdateCharacterRequest
	if !bindJSON(c, &req) {
		return
	}

	var character *entity.Character
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		character, err = h.characters.GetByID(ctx, characterID)
		if err != nil {
			return err
		}
		if character == nil {
			return apperrors.ErrCharacterNotFound
		}
		req.ApplyToCharacter(character)
		if err := h.characters.Update(ctx, character); err != nil {
			return err
		}

		// 组织角色改名时同步组织行
		if character.IsOrganization {
			org, err := h.organizations.GetByCharacterID(ctx, character.ID)
			if err != nil {
				return err
			}
			if org != nil && org.Name != character.Name {
				org.Name = character.Name
				return h.organizations.Update(ctx, org)
			}
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToCharacterResponse(character))
}

// DeleteCharacter 删除角色及其关系边与组织关联
// @Summary 删除角色
// @Tags Characters
// @Produce json
// @Param chid path string true "角色 ID"
// @Success 200 {object} dto.Response[dto.DeletedResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/characters/{chid} [delete]
func (h *CharacterHandler) DeleteCharacter(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	characterID := dto.BindCharacterID(c)
	if !requireParam(c, characterID, "chid") {
		return
	}

	deleted := map[string]int64{}
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		character, err := h.characters.GetByID(ctx, characterID)
		if err != nil {
			return err
		}
		if character == nil {
			return apperrors.ErrCharacterNotFound
		}

		rels, err := h.relationships.ListByCharacter(ctx, characterID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if err := h.relationships.Delete(ctx, rel.ID); err != nil {
				return err
			}
		}
		deleted["relationships"] = int64(len(rels))

		if character.IsOrganization {
			org, err := h.organizations.GetByCharacterID(ctx, characterID)
			if err != nil {
				return err
			}
			if org != nil {
				n, err := h.orgMembers.DeleteByOrganization(ctx, org.ID)
				if err != nil {
					return err
				}
				deleted["organization_members"] = n
				if err := h.organizations.Delete(ctx, org.ID); err != nil {
					return err
				}
				deleted["organizations"] = 1
			}
		}

		if err := h.characters.Delete(ctx, characterID); err != nil {
			return err
		}
		deleted["characters"] = 1

		project, err := h.projects.GetByID(ctx, character.ProjectID)
		if err != nil {
			return err
		}
		if project != nil && project.CharacterCount > 0 {
			project.CharacterCount--
			return h.projects.Update(ctx, project)
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.DeletedResponse{Deleted: deleted})
}

// UpsertRelationship 建立或更新角色关系（有向边，后写覆盖）
// @Summary 建立或更新角色关系
// @Tags Characters
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param request body dto.UpsertRelationshipRequest true "关系请求"
// @Success 200 {object} dto.Response[dto.RelationshipResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/relationships [post]
func (h *CharacterHandler) UpsertRelationship(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}
	var req dto.UpsertRelationshipRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.FromCharacterID == req.ToCharacterID {
		dto.Fail(c, apperrors.ErrValidationFailed.WithDetail("关系两端不能是同一角色"))
		return
	}

	var rel *entity.CharacterRelationship
	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		for _, id := range []string{req.FromCharacterID, req.ToCharacterID} {
			ch, err := h.characters.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if ch == nil || ch.ProjectID != projectID {
				return apperrors.ErrCharacterNotFound.WithDetail(id)
			}
		}

		rel = &entity.CharacterRelationship{
			ProjectID:       projectID,
			FromCharacterID: req.FromCharacterID,
			ToCharacterID:   req.ToCharacterID,
			TypeName:        req.TypeName,
			Description:     req.Description,
			Intimacy:        req.Intimacy,
			Source:          entity.RelationshipSourceManual,
			Status:          "active",
		}
		// 词表中存在同名类型时回填类型 ID
		if relType, err := h.relationTypes.GetByName(ctx, req.TypeName); err == nil && relType != nil {
			rel.RelationshipTypeID = &relType.ID
		}
		if err := h.relationships.Upsert(ctx, rel); err != nil {
			return err
		}
		fresh, err := h.relationships.GetByEdge(ctx, projectID, req.FromCharacterID, req.ToCharacterID)
		if err == nil && fresh != nil {
			rel = fresh
		}
		return nil
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToRelationshipResponse(rel))
}

// ListRelationships 获取项目角色关系列表
// @Summary 获取角色关系列表
// @Tags Characters
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.RelationshipListResponse]
// @Router /v1/projects/{pid}/relationships [get]
func (h *CharacterHandler) ListRelationships(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var rels []*entity.CharacterRelationship
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		rels, err = h.relationships.ListByProject(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询角色关系失败"))
		return
	}
	dto.Success(c, dto.ToRelationshipListResponse(rels))
}

// DeleteRelationship 删除角色关系
// @Summary 删除角色关系
// @Tags Characters
// @Produce json
// @Param rid path string true "关系 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/relationships/{rid} [delete]
func (h *CharacterHandler) DeleteRelationship(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	relationshipID := dto.BindRelationshipID(c)
	if !requireParam(c, relationshipID, "rid") {
		return
	}

	err := h.scope.Write(c.Request.Context(), tenantID, func(ctx context.Context) error {
		return h.relationships.Delete(ctx, relationshipID)
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "删除角色关系失败"))
		return
	}
	dto.NoContent(c)
}

// ListOrganizations 获取项目组织列表
// @Summary 获取组织列表
// @Tags Characters
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.OrganizationListResponse]
// @Router /v1/projects/{pid}/organizations [get]
func (h *CharacterHandler) ListOrganizations(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if !requireParam(c, projectID, "pid") {
		return
	}

	var orgs []*entity.Organization
	err := h.scope.Read(c.Request.Context(), tenantID, func(ctx context.Context) error {
		var err error
		orgs, err = h.organizations.ListByProject(ctx, projectID)
		return err
	})
	if err != nil {
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询组织列表失败"))
		return
	}
	dto.Success(c, dto.ToOrganizationListResponse(orgs))
}
