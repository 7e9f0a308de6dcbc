package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/lineflow-backend/internal/domain"
)

func TestDefaultSkipRules(t *testing.T) {
	r, err := NewRuleResolver(DefaultSkipRules)
	require.NoError(t, err)

	q := func(order int) *types.SurveyQuestion {
		return &types.SurveyQuestion{OrderIndex: order, Kind: types.KindMultiChoice}
	}
	cases := []struct {
		name  string
		order int
		value string
		want  NextStep
	}{
		{name: "plain", order: 1, value: "x", want: NextStep{NextOrder: 2, Cursor: 1}},
		{name: "catalog university skips free text", order: 3, value: "some-id", want: NextStep{NextOrder: 5, Cursor: 4}},
		{name: "other goes to free text", order: 3, value: "OTHER", want: NextStep{NextOrder: 4, Cursor: 3}},
		{name: "japanese other label", order: 3, value: "その他", want: NextStep{NextOrder: 4, Cursor: 3}},
		{name: "empty university answer", order: 3, value: "", want: NextStep{NextOrder: 4, Cursor: 3}},
		{name: "free text university", order: 4, value: "北海道大学", want: NextStep{NextOrder: 5, Cursor: 4}},
		{name: "last question", order: 7, value: "yes", want: NextStep{NextOrder: 8, Cursor: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Resolve(q(tc.order), tc.value))
		})
	}
}

func TestLoadSkipRulesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - when: order == 2 && value == "skip"
    next: order + 3
`), 0o600))

	r, err := LoadSkipRules(path)
	require.NoError(t, err)
	assert.Equal(t, NextStep{NextOrder: 5, Cursor: 2}, r.Resolve(&types.SurveyQuestion{OrderIndex: 2}, "skip"))
	assert.Equal(t, NextStep{NextOrder: 3, Cursor: 2}, r.Resolve(&types.SurveyQuestion{OrderIndex: 2}, "keep"))
	// defaults no longer apply once a file replaces them
	assert.Equal(t, NextStep{NextOrder: 4, Cursor: 3}, r.Resolve(&types.SurveyQuestion{OrderIndex: 3}, "id"))
}

func TestSkipRulesRejectBadInput(t *testing.T) {
	_, err := NewRuleResolver([]SkipRule{{When: "order ==", Next: "1"}})
	assert.Error(t, err)

	_, err = NewRuleResolver([]SkipRule{{When: "true"}})
	assert.Error(t, err)

	r, err := NewRuleResolver([]SkipRule{{When: "true", Next: "order - 1"}})
	require.NoError(t, err)
	assert.Equal(t, NextStep{NextOrder: 3, Cursor: 2}, r.Resolve(&types.SurveyQuestion{OrderIndex: 2}, ""))
}

func TestDefaultPathUsesDefaults(t *testing.T) {
	r, err := LoadSkipRules("")
	require.NoError(t, err)
	assert.Equal(t, NextStep{NextOrder: 5, Cursor: 4}, r.Resolve(&types.SurveyQuestion{OrderIndex: 3}, "u1"))
}
