package services

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

// NextStep is where a session goes after an answer: the question order to
// ask next and the cursor value to record.
type NextStep struct {
	NextOrder int
	Cursor    int
}

// NextOrderResolver decides the next question for an answered one.
type NextOrderResolver interface {
	Resolve(q *types.SurveyQuestion, value string) NextStep
}

// SkipRule is one conditional jump. When, Next and Cursor are expressions over
// order (int), value (string), other (bool) and kind (string).
type SkipRule struct {
	When   string `yaml:"when"`
	Next   string `yaml:"next"`
	Cursor string `yaml:"cursor"`
}

type skipRuleFile struct {
	Rules []SkipRule `yaml:"rules"`
}

// DefaultSkipRules route around the free-text university question: a catalog
// pick at 3 skips 4, and both paths leave the cursor on 4.
var DefaultSkipRules = []SkipRule{
	{When: `order == 3 && value != "" && !other`, Next: "5", Cursor: "4"},
	{When: "order == 4", Next: "5", Cursor: "4"},
}

type compiledRule struct {
	src    SkipRule
	when   *vm.Program
	next   *vm.Program
	cursor *vm.Program
}

// RuleResolver evaluates rules in order; the first match wins. With no match
// the next order is order+1 and the cursor is order.
type RuleResolver struct {
	rules []compiledRule
}

func ruleEnv(order int, value string, kind types.QuestionKind) map[string]any {
	return map[string]any{
		"order": order,
		"value": value,
		"other": linemsg.IsOther(value),
		"kind":  string(kind),
	}
}

func NewRuleResolver(rules []SkipRule) (*RuleResolver, error) {
	env := ruleEnv(0, "", "")
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.When) == "" || strings.TrimSpace(r.Next) == "" {
			return nil, fmt.Errorf("skip rule %d: when and next are required", i)
		}
		cursor := r.Cursor
		if strings.TrimSpace(cursor) == "" {
			cursor = "order"
		}
		when, err := expr.Compile(r.When, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("skip rule %d when: %w", i, err)
		}
		next, err := expr.Compile(r.Next, expr.Env(env), expr.AsInt())
		if err != nil {
			return nil, fmt.Errorf("skip rule %d next: %w", i, err)
		}
		cur, err := expr.Compile(cursor, expr.Env(env), expr.AsInt())
		if err != nil {
			return nil, fmt.Errorf("skip rule %d cursor: %w", i, err)
		}
		out = append(out, compiledRule{src: r, when: when, next: next, cursor: cur})
	}
	return &RuleResolver{rules: out}, nil
}

// LoadSkipRules reads a YAML rule file. An empty path yields the defaults.
func LoadSkipRules(path string) (*RuleResolver, error) {
	if strings.TrimSpace(path) == "" {
		return NewRuleResolver(DefaultSkipRules)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skip rules: %w", err)
	}
	var f skipRuleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse skip rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("skip rules file has no rules")
	}
	return NewRuleResolver(f.Rules)
}

func (r *RuleResolver) Resolve(q *types.SurveyQuestion, value string) NextStep {
	if q == nil {
		return NextStep{NextOrder: 1}
	}
	def := NextStep{NextOrder: q.OrderIndex + 1, Cursor: q.OrderIndex}
	if r == nil {
		return def
	}
	env := ruleEnv(q.OrderIndex, strings.TrimSpace(value), q.Kind)
	for _, rule := range r.rules {
		hit, err := expr.Run(rule.when, env)
		if err != nil || hit != true {
			continue
		}
		next, err := expr.Run(rule.next, env)
		if err != nil {
			return def
		}
		cursor, err := expr.Run(rule.cursor, env)
		if err != nil {
			return def
		}
		n, _ := next.(int)
		c, _ := cursor.(int)
		if n <= q.OrderIndex {
			// a rule may never move backwards
			return def
		}
		return NextStep{NextOrder: n, Cursor: c}
	}
	return def
}
