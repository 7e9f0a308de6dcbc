package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/render"
)

var errPushRejected = errors.New("push rejected")

type sent struct {
	To         string
	ReplyToken string
	Messages   []linemsg.Message
}

type fakeNotifier struct {
	mu      sync.Mutex
	replies []sent
	pushes  []sent
	failFor map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: map[string]bool{}}
}

func (f *fakeNotifier) Reply(ctx context.Context, replyToken string, messages []linemsg.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sent{ReplyToken: replyToken, Messages: messages})
	return nil
}

func (f *fakeNotifier) Push(ctx context.Context, to string, messages []linemsg.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to] {
		return errPushRejected
	}
	f.pushes = append(f.pushes, sent{To: to, Messages: messages})
	return nil
}

func (f *fakeNotifier) fail(to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[to] = true
}

func (f *fakeNotifier) pushesTo(to string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, p := range f.pushes {
		if p.To == to {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeNotifier) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(ctx context.Context, userID string) (*line.Profile, error) {
	return &line.Profile{UserID: userID, DisplayName: "name " + userID, PictureURL: "https://img.example.com/" + userID}, nil
}

type harness struct {
	db       *gorm.DB
	repos    repos.Set
	notifier *fakeNotifier
	story    StoryEngine
	survey   SurveyEngine
	ps       *testutil.ProfileStory
	cfg      EngineConfig
	now      time.Time
}

// newHarness wires both engines against a fresh database seeded with the
// profile story. Services run outside test transactions, so fixtures are
// written straight to the database.
func newHarness(t *testing.T, opts testutil.ProfileStoryOptions) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)

	h := &harness{
		db:       db,
		repos:    rs,
		notifier: newFakeNotifier(),
		ps:       testutil.SeedProfileStory(t, db, opts),
		now:      time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC),
	}
	h.cfg = EngineConfig{ProfileStoryTitle: testutil.ProfileStoryTitle, FollowUpDays: 4, Now: func() time.Time { return h.now }}

	renderer := render.New()
	out := NewOutbound(log, h.notifier, rs.UserFlow, nil)
	h.story = NewStoryEngine(log, h.cfg, rs, renderer, out, fakeProfiles{})

	resolver, err := NewRuleResolver(DefaultSkipRules)
	require.NoError(t, err)
	h.survey = NewSurveyEngine(
		log, h.cfg, rs, renderer,
		NewOptionSource(log, rs.Survey, rs.Response, rs.Catalog),
		resolver,
		NewProfileSync(log, rs.Response, rs.Catalog, rs.Customer),
		h.story,
		nil,
	)
	return h
}

func (h *harness) enroll(t *testing.T, lineUserID string) *types.Customer {
	t.Helper()
	require.NoError(t, h.story.Enroll(context.Background(), lineUserID))
	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), lineUserID)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (h *harness) flow(t *testing.T, customerID uuid.UUID) *types.UserFlow {
	t.Helper()
	var f types.UserFlow
	require.NoError(t, h.db.Where("customer_id = ?", customerID).Take(&f).Error)
	return &f
}

func (h *harness) session(t *testing.T, customer *types.Customer) *types.SurveySession {
	t.Helper()
	s, err := h.repos.Session.Get(testutil.Ctx(), h.ps.Survey.ID, customer.ID)
	require.NoError(t, err)
	return s
}

func (h *harness) answer(t *testing.T, customer *types.Customer, order int, optionID, value string) linemsg.Message {
	t.Helper()
	msg, err := h.survey.Answer(context.Background(), AnswerInput{
		SurveyID:   h.ps.Survey.ID,
		CustomerID: customer.ID,
		QuestionID: h.ps.Question(t, order).ID,
		OptionID:   optionID,
		Value:      value,
	})
	require.NoError(t, err)
	return msg
}

// choiceData decodes every postback carried by a rendered message.
func choiceData(t *testing.T, msg linemsg.Message) []linemsg.PostbackData {
	t.Helper()
	var out []linemsg.PostbackData
	var walk func(node any)
	walk = func(node any) {
		switch v := node.(type) {
		case map[string]any:
			if v["type"] == "postback" {
				if raw, ok := v["data"].(string); ok {
					d, err := linemsg.DecodePostback(raw)
					require.NoError(t, err)
					out = append(out, d)
				}
			}
			for _, child := range v {
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(map[string]any(msg))
	return out
}

func choiceValues(t *testing.T, msg linemsg.Message) []string {
	t.Helper()
	var out []string
	for _, d := range choiceData(t, msg) {
		out = append(out, d.OptionValue)
	}
	return out
}
