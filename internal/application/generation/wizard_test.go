package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelforge-api/internal/domain/entity"
	errs "novelforge-api/pkg/errors"
)

func TestParseWorldPayload(t *testing.T) {
	t.Run("正常解析并去空白", func(t *testing.T) {
		raw := "```json\n{\"time_period\":\" 架空王朝 \",\"location\":\"北境\",\"atmosphere\":\"肃杀\",\"world_rules\":\"灵力稀薄\"}\n```"
		world, err := parseWorldPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, "架空王朝", world.TimePeriod)
		assert.Equal(t, "北境", world.Location)
	})

	t.Run("四要素全空视为无效", func(t *testing.T) {
		_, err := parseWorldPayload(`{"time_period":"","location":" ","atmosphere":"","world_rules":""}`)
		require.Error(t, err)
		assert.Equal(t, errs.CodeLLMInvalidResponse, errs.AsAppError(err).Code)
	})

	t.Run("非 JSON 输出", func(t *testing.T) {
		_, err := parseWorldPayload("抱歉，我无法完成")
		require.Error(t, err)
	})
}

func TestParseCharacterPayloadsCountMismatch(t *testing.T) {
	raw := `[{"name":"林远"},{"name":"苏晴"}]`

	payloads, err := parseCharacterPayloads(raw, 2)
	require.NoError(t, err)
	assert.Len(t, payloads, 2)

	_, err = parseCharacterPayloads(raw, 3)
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidationFailed, errs.AsAppError(err).Code)
}

func TestFilterHallucinatedRefs(t *testing.T) {
	payloads := []characterPayload{
		{
			Name: "林远",
			Relationships: []relationPayload{
				{Target: "苏晴", Type: "挚友"},
				{Target: "不存在的人", Type: "仇人"},
			},
			Memberships: []membershipPayload{
				{Organization: "天机阁", Position: "外门弟子"},
				{Organization: "苏晴", Position: "成员"}, // 引用了非组织实体
				{Organization: "幽冥殿", Position: "卧底"},
			},
		},
		{Name: "苏晴"},
		{Name: "天机阁", IsOrganization: true},
	}

	dropped := filterHallucinatedRefs(payloads)

	assert.Equal(t, 3, dropped)
	require.Len(t, payloads[0].Relationships, 1)
	assert.Equal(t, "苏晴", payloads[0].Relationships[0].Target)
	require.Len(t, payloads[0].Memberships, 1)
	assert.Equal(t, "天机阁", payloads[0].Memberships[0].Organization)
}

func TestFilterHallucinatedRefsNoop(t *testing.T) {
	payloads := []characterPayload{
		{Name: "林远", Relationships: []relationPayload{{Target: "苏晴"}}},
		{Name: "苏晴"},
	}
	assert.Zero(t, filterHallucinatedRefs(payloads))
	assert.Len(t, payloads[0].Relationships, 1)
}

func TestWizardBatchRequirements(t *testing.T) {
	t.Run("首批单角色", func(t *testing.T) {
		got := wizardBatchRequirements("", BatchSpec{Index: 0, Count: 1}, 3)
		assert.Contains(t, got, "1 个主角")
	})

	t.Run("首批多角色", func(t *testing.T) {
		got := wizardBatchRequirements("", BatchSpec{Index: 0, Count: 3}, 3)
		assert.Contains(t, got, "1 个主角")
		assert.Contains(t, got, "2 个为核心配角")
	})

	t.Run("末批允许组织", func(t *testing.T) {
		got := wizardBatchRequirements("", BatchSpec{Index: 2, Count: 3}, 3)
		assert.Contains(t, got, "组织实体")
	})

	t.Run("中间批", func(t *testing.T) {
		got := wizardBatchRequirements("额外要求", BatchSpec{Index: 1, Count: 3}, 3)
		assert.Contains(t, got, "额外要求")
		assert.Contains(t, got, "配角（supporting）和反派（antagonist）为主")
	})
}

func TestWizardExistingCharacters(t *testing.T) {
	assert.Equal(t, "暂无", wizardExistingCharacters(nil))

	payloads := []characterPayload{
		{Name: "林远", CharacterType: "protagonist", Personality: "冷静"},
		{Name: "天机阁", IsOrganization: true},
	}
	got := wizardExistingCharacters(payloads)
	assert.Contains(t, got, "林远（protagonist）")
	assert.Contains(t, got, "天机阁（组织）")
}

func TestRelationshipsSummary(t *testing.T) {
	assert.Empty(t, relationshipsSummary(nil))

	got := relationshipsSummary([]relationPayload{
		{Target: "苏晴", Type: "挚友", Description: "青梅竹马"},
		{Target: "  ", Type: "忽略"},
		{Target: "陆沉"},
	})
	assert.Equal(t, "苏晴（挚友）：青梅竹马；陆沉（未知关系）", got)
}

func TestParseCharacterType(t *testing.T) {
	assert.Equal(t, entity.CharacterTypeProtagonist, parseCharacterType(" Protagonist "))
	assert.Equal(t, entity.CharacterTypeAntagonist, parseCharacterType("antagonist"))
	assert.Equal(t, entity.CharacterTypeSupporting, parseCharacterType("supporting"))
	assert.Equal(t, entity.CharacterTypeSupporting, parseCharacterType("随便写的"))
	assert.Equal(t, entity.CharacterTypeSupporting, parseCharacterType(""))
}

func TestClampIntimacy(t *testing.T) {
	assert.Equal(t, 50, clampIntimacy(0), "缺省 50")
	assert.Equal(t, 50, clampIntimacy(-10))
	assert.Equal(t, 100, clampIntimacy(150))
	assert.Equal(t, 80, clampIntimacy(80))
}
