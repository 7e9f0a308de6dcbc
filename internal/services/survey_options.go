package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/render"
)

const otherLabel = "その他"

// OptionItem is one selectable answer. ID is set only for static survey
// options; catalog rows travel by id in Value.
type OptionItem struct {
	ID    string
	Label string
	Value string
}

// Carry is the answer that led to the question being built. The prefecture
// question reads its kana group from it when it came from order 5.
type Carry struct {
	Order int
	Value string
}

type OptionSource interface {
	Options(ctx context.Context, q *types.SurveyQuestion, customerID uuid.UUID, carry Carry) ([]OptionItem, error)
}

type optionSource struct {
	log       *logger.Logger
	surveys   repos.SurveyRepo
	responses repos.ResponseRepo
	catalog   repos.CatalogRepo
}

func NewOptionSource(log *logger.Logger, surveys repos.SurveyRepo, responses repos.ResponseRepo, catalog repos.CatalogRepo) OptionSource {
	return &optionSource{
		log:       log.With("service", "OptionSource"),
		surveys:   surveys,
		responses: responses,
		catalog:   catalog,
	}
}

// Options lists at most render.MaxChoices entries. Static options win; without
// them the question order selects a catalog.
func (s *optionSource) Options(ctx context.Context, q *types.SurveyQuestion, customerID uuid.UUID, carry Carry) ([]OptionItem, error) {
	dbc := dbctx.New(ctx)

	static, err := s.surveys.ListOptions(dbc, q.ID)
	if err != nil {
		return nil, err
	}
	if len(static) > 0 {
		out := make([]OptionItem, 0, len(static))
		for _, o := range static {
			out = append(out, OptionItem{ID: o.ID.String(), Label: o.Label, Value: o.Value})
		}
		return capItems(out), nil
	}

	switch q.OrderIndex {
	case 1:
		rows, err := s.catalog.Grades(dbc, render.MaxChoices)
		if err != nil {
			return nil, err
		}
		out := make([]OptionItem, 0, len(rows))
		for _, g := range rows {
			out = append(out, catalogItem(g.ID, g.Name))
		}
		return out, nil
	case 2:
		rows, err := s.catalog.Majors(dbc, render.MaxChoices)
		if err != nil {
			return nil, err
		}
		out := make([]OptionItem, 0, len(rows))
		for _, m := range rows {
			out = append(out, catalogItem(m.ID, m.Name))
		}
		return out, nil
	case 3:
		rows, err := s.catalog.Universities(dbc, render.MaxChoices)
		if err != nil {
			return nil, err
		}
		out := make([]OptionItem, 0, len(rows)+1)
		for _, u := range rows {
			if strings.TrimSpace(u.Name) == otherLabel {
				out = append(out, OptionItem{Label: otherLabel, Value: linemsg.OtherValue})
				continue
			}
			out = append(out, catalogItem(u.ID, u.Name))
		}
		return withOther(out), nil
	case 6:
		group := ""
		if carry.Order == 5 {
			group = strings.TrimSpace(carry.Value)
		}
		if group == "" {
			group, err = s.storedAnswer(dbc, q.SurveyID, customerID, 5)
			if err != nil {
				return nil, err
			}
		}
		if group == "" {
			s.log.Warn("prefecture question without kana group", "survey_id", q.SurveyID, "customer_id", customerID)
			return []OptionItem{}, nil
		}
		rows, err := s.catalog.PrefecturesByGroup(dbc, group, render.MaxChoices)
		if err != nil {
			return nil, err
		}
		out := make([]OptionItem, 0, len(rows))
		for _, p := range rows {
			out = append(out, catalogItem(p.ID, p.Name))
		}
		return out, nil
	default:
		return []OptionItem{}, nil
	}
}

func (s *optionSource) storedAnswer(dbc dbctx.Context, surveyID, customerID uuid.UUID, order int) (string, error) {
	answers, err := s.responses.ListAnswers(dbc, surveyID, customerID)
	if err != nil {
		return "", err
	}
	for _, a := range answers {
		if a.OrderIndex == order {
			return strings.TrimSpace(a.Value), nil
		}
	}
	return "", nil
}

func catalogItem(id uuid.UUID, name string) OptionItem {
	return OptionItem{Label: name, Value: id.String()}
}

// withOther guarantees an "other" entry, dropping the last catalog row when
// the list is already full.
func withOther(items []OptionItem) []OptionItem {
	for _, it := range items {
		if linemsg.IsOther(it.Value) {
			return capItems(items)
		}
	}
	if len(items) >= render.MaxChoices {
		items = items[:render.MaxChoices-1]
	}
	return append(items, OptionItem{Label: otherLabel, Value: linemsg.OtherValue})
}

func capItems(items []OptionItem) []OptionItem {
	if len(items) > render.MaxChoices {
		return items[:render.MaxChoices]
	}
	return items
}
