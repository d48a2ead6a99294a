// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"novelforge-api/internal/domain/entity"
)

// CreateCharacterRequest 创建角色请求
type CreateCharacterRequest struct {
	Name             string `json:"name" binding:"required,max=255"`
	CharacterType    string `json:"character_type" binding:"omitempty,oneof=protagonist antagonist supporting"`
	Age              int    `json:"age" binding:"gte=0"`
	Gender           string `json:"gender" binding:"max=50"`
	Personality      string `json:"personality"`
	Background       string `json:"background"`
	Appearance       string `json:"appearance"`
	Motivation       string `json:"motivation"`
	IsOrganization   bool   `json:"is_organization"`
	OrganizationType string `json:"organization_type" binding:"max=100"`
}

// UpdateCharacterRequest 更新角色请求
type UpdateCharacterRequest struct {
	Name          *string `json:"name,omitempty" binding:"omitempty,max=255"`
	CharacterType *string `json:"character_type,omitempty" binding:"omitempty,oneof=protagonist antagonist supporting"`
	Age           *int    `json:"age,omitempty" binding:"omitempty,gte=0"`
	Gender        *string `json:"gender,omitempty" binding:"omitempty,max=50"`
	Personality   *string `json:"personality,omitempty"`
	Background    *string `json:"background,omitempty"`
	Appearance    *string `json:"appearance,omitempty"`
	Motivation    *string `json:"motivation,omitempty"`
	Status        *string `json:"status,omitempty"`
}

// CharacterResponse 角色响应
type CharacterResponse struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Name             string    `json:"name"`
	CharacterType    string    `json:"character_type"`
	Age              int       `json:"age,omitempty"`
	Gender           string    `json:"gender,omitempty"`
	Personality      string    `json:"personality,omitempty"`
	Background       string    `json:"background,omitempty"`
	Appearance       string    `json:"appearance,omitempty"`
	Motivation       string    `json:"motivation,omitempty"`
	Relationships    string    `json:"relationships,omitempty"`
	IsOrganization   bool      `json:"is_organization"`
	OrganizationType string    `json:"organization_type,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CharacterListResponse 角色列表响应
type CharacterListResponse struct {
	Characters []*CharacterResponse `json:"characters"`
}

// UpsertRelationshipRequest 建立或更新角色关系请求
type UpsertRelationshipRequest struct {
	FromCharacterID string `json:"from_character_id" binding:"required"`
	ToCharacterID   string `json:"to_character_id" binding:"required"`
	TypeName        string `json:"type_name" binding:"required,max=100"`
	Description     string `json:"description"`
	Intimacy        int    `json:"intimacy" binding:"gte=0,lte=100"`
}

// RelationshipResponse 角色关系响应
type RelationshipResponse struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	FromCharacterID string    `json:"from_character_id"`
	ToCharacterID   string    `json:"to_character_id"`
	TypeName        string    `json:"type_name,omitempty"`
	Description     string    `json:"description,omitempty"`
	Intimacy        int       `json:"intimacy"`
	Source          string    `json:"source"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// RelationshipListResponse 角色关系列表响应
type RelationshipListResponse struct {
	Relationships []*RelationshipResponse `json:"relationships"`
}

// OrganizationResponse 组织响应
type OrganizationResponse struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	CharacterID      string    `json:"character_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	OrganizationType string    `json:"organization_type,omitempty"`
	MemberCount      int       `json:"member_count"`
	PowerLevel       int       `json:"power_level"`
	Location         string    `json:"location,omitempty"`
	Motto            string    `json:"motto,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// OrganizationListResponse 组织列表响应
type OrganizationListResponse struct {
	Organizations []*OrganizationResponse `json:"organizations"`
}

// ToCharacterResponse 将领域实体转换为响应 DTO
func ToCharacterResponse(ch *entity.Character) *CharacterResponse {
	if ch == nil {
		return nil
	}
	return &CharacterResponse{
		ID:               ch.ID,
		ProjectID:        ch.ProjectID,
		Name:             ch.Name,
		CharacterType:    string(ch.CharacterType),
		Age:              ch.Age,
		Gender:           ch.Gender,
		Personality:      ch.Personality,
		Background:       ch.Background,
		Appearance:       ch.Appearance,
		Motivation:       ch.Motivation,
		Relationships:    ch.Relationships,
		IsOrganization:   ch.IsOrganization,
		OrganizationType: ch.OrganizationType,
		Status:           ch.Status,
		CreatedAt:        ch.CreatedAt,
		UpdatedAt:        ch.UpdatedAt,
	}
}

// ToCharacterListResponse 将领域实体列表转换为响应 DTO
func ToCharacterListResponse(characters []*entity.Character) *CharacterListResponse {
	resp := &CharacterListResponse{
		Characters: make([]*CharacterResponse, 0, len(characters)),
	}
	for _, ch := range characters {
		resp.Characters = append(resp.Characters, ToCharacterResponse(ch))
	}
	return resp
}

// ToRelationshipResponse 将领域实体转换为响应 DTO
func ToRelationshipResponse(rel *entity.CharacterRelationship) *RelationshipResponse {
	if rel == nil {
		return nil
	}
	return &RelationshipResponse{
		ID:              rel.ID,
		ProjectID:       rel.ProjectID,
		FromCharacterID: rel.FromCharacterID,
		ToCharacterID:   rel.ToCharacterID,
		TypeName:        rel.TypeName,
		Description:     rel.Description,
		Intimacy:        rel.Intimacy,
		Source:          string(rel.Source),
		Status:          rel.Status,
		CreatedAt:       rel.CreatedAt,
	}
}

// ToRelationshipListResponse 将领域实体列表转换为响应 DTO
func ToRelationshipListResponse(rels []*entity.CharacterRelationship) *RelationshipListResponse {
	resp := &RelationshipListResponse{
		Relationships: make([]*RelationshipResponse, 0, len(rels)),
	}
	for _, rel := range rels {
		resp.Relationships = append(resp.Relationships, ToRelationshipResponse(rel))
	}
	return resp
}

// ToOrganizationResponse 将领域实体转换为响应 DTO
func ToOrganizationResponse(org *entity.Organization) *OrganizationResponse {
	if org == nil {
		return nil
	}
	return &OrganizationResponse{
		ID:               org.ID,
		ProjectID:        org.ProjectID,
		CharacterID:      org.CharacterID,
		Name:             org.Name,
		Description:      org.Description,
		OrganizationType: org.OrganizationType,
		MemberCount:      org.MemberCount,
		PowerLevel:       org.PowerLevel,
		Location:         org.Location,
		Motto:            org.Motto,
		CreatedAt:        org.CreatedAt,
	}
}

// ToOrganizationListResponse 将领域实体列表转换为响应 DTO
func ToOrganizationListResponse(orgs []*entity.Organization) *OrganizationListResponse {
	resp := &OrganizationListResponse{
		Organizations: make([]*OrganizationResponse, 0, len(orgs)),
	}
	for _, org := range orgs {
		resp.Organizations = append(resp.Organizations, ToOrganizationResponse(org))
	}
	return resp
}

// ToCharacterEntity 将请求 DTO 转换为领域实体
func (r *CreateCharacterRequest) ToCharacterEntity(projectID string) *entity.Character {
	charType := entity.CharacterType(r.CharacterType)
	if charType == "" {
		charType = entity.CharacterTypeSupporting
	}
	ch := entity.NewCharacter(projectID, r.Name, charType)
	ch.Age = r.Age
	ch.Gender = r.Gender
	ch.Personality = r.Personality
	ch.Background = r.Background
	ch.Appearance = r.Appearance
	ch.Motivation = r.Motivation
	ch.IsOrganization = r.IsOrganization
	ch.OrganizationType = r.OrganizationType
	return ch
}

// ApplyToCharacter 将更新请求应用到角色实体
func (r *UpdateCharacterRequest) ApplyToCharacter(ch *entity.Character) {
	if r.Name != nil {
		ch.Name = *r.Name
	}
	if r.CharacterType != nil {
		ch.CharacterType = entity.CharacterType(*r.CharacterType)
	}
	if r.Age != nil {
		ch.Age = *r.Age
	}
	if r.Gender != nil {
		ch.Gender = *r.Gender
	}
	if r.Personality != nil {
		ch.Personality = *r.Personality
	}
	if r.Background != nil {
		ch.Background = *r.Background
	}
	if r.Appearance != nil {
		ch.Appearance = *r.Appearance
	}
	if r.Motivation != nil {
		ch.Motivation = *r.Motivation
	}
	if r.Status != nil {
		ch.Status = *r.Status
	}
	ch.UpdatedAt = time.Now()
}
