package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lineflow-backend/internal/domain"
)

const ProfileStoryTitle = "初回プロフィール登録ストーリー"

// KanaGroups are the static option values of question 5 and the
// Prefecture.KanaGroup keys.
var KanaGroups = []struct{ Label, Value string }{
	{"あ行", "あ"}, {"か行", "か"}, {"さ行", "さ"}, {"た行", "た"}, {"な行", "な"},
	{"は行", "は"}, {"ま行", "ま"}, {"や行", "や"}, {"ら行", "ら"}, {"わ行", "わ"},
}

func SeedCustomer(tb testing.TB, tx *gorm.DB, lineUserID string) *types.Customer {
	tb.Helper()
	c := &types.Customer{LineUserID: lineUserID, DisplayName: "user " + lineUserID, OptIn: true}
	if err := tx.Create(c).Error; err != nil {
		tb.Fatalf("seed customer: %v", err)
	}
	return c
}

type ProfileStoryOptions struct {
	// Universities is the number of catalog universities; zero means 3.
	Universities int
	// FreeTextQ4 seeds question 4 as a free-text question.
	FreeTextQ4 bool
	// NoFollowUp leaves the survey node as the last node of the story.
	NoFollowUp bool
}

type ProfileStory struct {
	Story     *types.Story
	Entry     *types.MessageNode
	FollowUp  *types.MessageNode
	Survey    *types.Survey
	Questions map[int]*types.SurveyQuestion

	Grades       []*types.Grade
	Majors       []*types.Major
	Universities []*types.University
	Prefectures  []*types.Prefecture
}

// SeedProfileStory seeds the onboarding story: an entry node owning the
// profile survey followed by one plain content node, plus the catalogs the
// survey draws its options from.
func SeedProfileStory(tb testing.TB, tx *gorm.DB, opts ProfileStoryOptions) *ProfileStory {
	tb.Helper()
	must := func(what string, err error) {
		if err != nil {
			tb.Fatalf("seed %s: %v", what, err)
		}
	}

	ps := &ProfileStory{Questions: map[int]*types.SurveyQuestion{}}

	ps.Story = &types.Story{Title: ProfileStoryTitle}
	must("story", tx.Create(ps.Story).Error)

	ps.Entry = &types.MessageNode{
		StoryID:      ps.Story.ID,
		Title:        "ようこそ",
		Body:         "プロフィールを登録してください",
		ImageURL:     "https://cdn.example.com/welcome.png",
		PrimaryLabel: "回答を始める",
	}
	must("entry node", tx.Create(ps.Entry).Error)

	if !opts.NoFollowUp {
		ps.FollowUp = &types.MessageNode{
			StoryID:    ps.Story.ID,
			PrevNodeID: &ps.Entry.ID,
			Title:      "お知らせ",
			Body:       "新着情報です",
		}
		must("follow-up node", tx.Create(ps.FollowUp).Error)
		must("link nodes", tx.Model(ps.Entry).Update("next_node_id", ps.FollowUp.ID).Error)
		ps.Entry.NextNodeID = &ps.FollowUp.ID
	}

	ps.Survey = &types.Survey{NodeID: ps.Entry.ID, Title: "プロフィール"}
	must("survey", tx.Create(ps.Survey).Error)

	addQ := func(order int, kind types.QuestionKind, text string) *types.SurveyQuestion {
		q := &types.SurveyQuestion{
			SurveyID:   ps.Survey.ID,
			OrderIndex: order,
			Title:      fmt.Sprintf("Q%d", order),
			Text:       text,
			Kind:       kind,
		}
		must("question", tx.Create(q).Error)
		ps.Questions[order] = q
		return q
	}
	addQ(1, types.KindMultiChoice, "学年を教えてください")
	addQ(2, types.KindMultiChoice, "専攻を教えてください")
	addQ(3, types.KindMultiChoice, "大学を教えてください")
	if opts.FreeTextQ4 {
		addQ(4, types.KindFreeText, "大学名を入力してください")
	}
	q5 := addQ(5, types.KindStaticOptions, "都道府県の頭文字を選んでください")
	for i, g := range KanaGroups {
		must("q5 option", tx.Create(&types.SurveyOption{
			QuestionID: q5.ID, Label: g.Label, Value: g.Value, OrderIndex: i + 1,
		}).Error)
	}
	addQ(6, types.KindMultiChoice, "都道府県を教えてください")
	addQ(7, types.KindYesNo, "お知らせを受け取りますか？")

	for i, name := range []string{"1年", "2年", "3年", "4年"} {
		g := &types.Grade{Name: name, OrderIndex: i + 1}
		must("grade", tx.Create(g).Error)
		ps.Grades = append(ps.Grades, g)
	}
	for i, name := range []string{"文系", "理系"} {
		m := &types.Major{Name: name, OrderIndex: i + 1}
		must("major", tx.Create(m).Error)
		ps.Majors = append(ps.Majors, m)
	}
	nu := opts.Universities
	if nu == 0 {
		nu = 3
	}
	for i := 0; i < nu; i++ {
		u := &types.University{Name: fmt.Sprintf("大学%02d", i+1), OrderIndex: i + 1}
		must("university", tx.Create(u).Error)
		ps.Universities = append(ps.Universities, u)
	}
	for i, p := range []struct{ name, group string }{
		{"大阪府", "あ"}, {"愛知県", "あ"}, {"京都府", "か"}, {"東京都", "た"},
	} {
		pr := &types.Prefecture{Name: p.name, KanaGroup: p.group, OrderIndex: i + 1}
		must("prefecture", tx.Create(pr).Error)
		ps.Prefectures = append(ps.Prefectures, pr)
	}
	return ps
}

func (ps *ProfileStory) Question(tb testing.TB, order int) *types.SurveyQuestion {
	tb.Helper()
	q, ok := ps.Questions[order]
	if !ok {
		tb.Fatalf("profile story has no question %d", order)
	}
	return q
}

func (ps *ProfileStory) PrefectureByName(name string) uuid.UUID {
	for _, p := range ps.Prefectures {
		if p.Name == name {
			return p.ID
		}
	}
	return uuid.Nil
}
