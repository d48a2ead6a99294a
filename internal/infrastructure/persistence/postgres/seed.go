// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"fmt"

	"novelforge-api/internal/domain/entity"
	"novelforge-api/internal/domain/repository"
	"novelforge-api/pkg/logger"
)

// TenantSeeder 租户初始化播种器
// 播种内置关系类型词表与全局写作风格预置，均以计数判断实现幂等
type TenantSeeder struct {
	txMgr     *TxManager
	tenantCtx *TenantContext
	relTypes  repository.RelationshipTypeRepository
	styles    repository.WritingStyleRepository
}

// NewTenantSeeder 创建播种器
func NewTenantSeeder(txMgr *TxManager, tenantCtx *TenantContext, relTypes repository.RelationshipTypeRepository, styles repository.WritingStyleRepository) *TenantSeeder {
	return &TenantSeeder{
		txMgr:     txMgr,
		tenantCtx: tenantCtx,
		relTypes:  relTypes,
		styles:    styles,
	}
}

// EnsureSeeded 幂等播种，词表已存在时跳过
func (s *TenantSeeder) EnsureSeeded(ctx context.Context, tenantID string) error {
	return s.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.tenantCtx.SetTenant(txCtx, tenantID); err != nil {
			return err
		}

		relCount, err := s.relTypes.CountByTenant(txCtx)
		if err != nil {
			return fmt.Errorf("failed to count relationship types: %w", err)
		}
		if relCount == 0 {
			if err := s.relTypes.CreateBatch(txCtx, builtinRelationshipTypes(tenantID)); err != nil {
				return fmt.Errorf("failed to seed relationship types: %w", err)
			}
			logger.Info(txCtx, "relationship types seeded", "tenant_id", tenantID)
		}

		styleCount, err := s.styles.CountPresets(txCtx)
		if err != nil {
			return fmt.Errorf("failed to count style presets: %w", err)
		}
		if styleCount == 0 {
			if err := s.styles.CreateBatch(txCtx, presetWritingStyles(tenantID)); err != nil {
				return fmt.Errorf("failed to seed writing styles: %w", err)
			}
			logger.Info(txCtx, "writing style presets seeded", "tenant_id", tenantID)
		}

		return nil
	})
}

// builtinRelationshipTypes 内置关系类型词表
func builtinRelationshipTypes(tenantID string) []*entity.RelationshipType {
	specs := []struct {
		name        string
		reverseName string
		category    entity.RelationshipCategory
		intimacyMin int
		intimacyMax int
		icon        string
	}{
		// 家庭关系
		{"父亲", "子女", entity.RelationshipCategoryFamily, 60, 100, "👨"},
		{"母亲", "子女", entity.RelationshipCategoryFamily, 60, 100, "👩"},
		{"兄弟", "兄弟", entity.RelationshipCategoryFamily, 50, 95, "👬"},
		{"姐妹", "姐妹", entity.RelationshipCategoryFamily, 50, 95, "👭"},
		{"子女", "父母", entity.RelationshipCategoryFamily, 60, 100, "👶"},
		{"配偶", "配偶", entity.RelationshipCategoryFamily, 70, 100, "💑"},
		{"恋人", "恋人", entity.RelationshipCategoryFamily, 70, 100, "💕"},
		// 社会关系
		{"师父", "徒弟", entity.RelationshipCategorySocial, 50, 90, "🧙"},
		{"徒弟", "师父", entity.RelationshipCategorySocial, 50, 90, "🥋"},
		{"朋友", "朋友", entity.RelationshipCategorySocial, 40, 85, "🤝"},
		{"同学", "同学", entity.RelationshipCategorySocial, 30, 75, "🎓"},
		{"邻居", "邻居", entity.RelationshipCategorySocial, 20, 60, "🏠"},
		{"知己", "知己", entity.RelationshipCategorySocial, 70, 95, "💬"},
		// 职业关系
		{"上司", "下属", entity.RelationshipCategoryProfessional, 20, 70, "👔"},
		{"下属", "上司", entity.RelationshipCategoryProfessional, 20, 70, "📋"},
		{"同事", "同事", entity.RelationshipCategoryProfessional, 20, 70, "💼"},
		{"合作伙伴", "合作伙伴", entity.RelationshipCategoryProfessional, 30, 80, "🤜"},
		// 敌对关系
		{"敌人", "敌人", entity.RelationshipCategoryHostile, 0, 20, "⚔️"},
		{"仇人", "仇人", entity.RelationshipCategoryHostile, 0, 10, "🔥"},
		{"竞争对手", "竞争对手", entity.RelationshipCategoryHostile, 10, 40, "🏁"},
		{"宿敌", "宿敌", entity.RelationshipCategoryHostile, 0, 15, "💢"},
	}

	types := make([]*entity.RelationshipType, 0, len(specs))
	for _, spec := range specs {
		types = append(types, &entity.RelationshipType{
			TenantID:    tenantID,
			Name:        spec.name,
			ReverseName: spec.reverseName,
			Category:    spec.category,
			IntimacyMin: spec.intimacyMin,
			IntimacyMax: spec.intimacyMax,
			Icon:        spec.icon,
			IsBuiltin:   true,
		})
	}
	return types
}

// presetWritingStyles 全局写作风格预置
func presetWritingStyles(tenantID string) []*entity.WritingStyle {
	specs := []struct {
		name        string
		description string
		tone        string
		promptHint  string
	}{
		{
			"经典叙事",
			"平衡的叙事节奏，注重情节推进与人物刻画",
			"沉稳",
			"采用经典的叙事手法，情节与人物并重，描写细腻但不拖沓",
		},
		{
			"快节奏爽文",
			"情节紧凑，冲突密集，阅读体验畅快",
			"激烈",
			"节奏明快，每章设置冲突与反转，多用短句，强化画面感和爽点",
		},
		{
			"细腻文艺",
			"注重心理描写与氛围渲染，文字优美",
			"抒情",
			"文字细腻优美，重视人物内心活动和环境氛围的描写，节奏舒缓",
		},
		{
			"悬疑紧张",
			"层层铺垫悬念，气氛压抑紧张",
			"紧张",
			"营造悬疑氛围，信息逐步释放，在章节结尾留下钩子",
		},
		{
			"轻松幽默",
			"语言诙谐，基调轻松",
			"幽默",
			"语言轻松诙谐，适当加入幽默对话和趣味情节，避免沉重情绪",
		},
	}

	styles := make([]*entity.WritingStyle, 0, len(specs))
	for i, spec := range specs {
		styles = append(styles, &entity.WritingStyle{
			TenantID:    tenantID,
			ProjectID:   nil,
			Name:        spec.name,
			Description: spec.description,
			Tone:        spec.tone,
			PromptHint:  spec.promptHint,
			OrderIndex:  i + 1,
			IsPreset:    true,
		})
	}
	return styles
}
