package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/clients/redis"
	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

func newTestRouter(t *testing.T, h *harness, withRedis bool) EventRouter {
	t.Helper()
	log := testutil.Logger(t)
	coord := redis.NewInMemory()
	t.Cleanup(func() { _ = coord.Close() })
	var deduper Deduper
	if withRedis {
		deduper = coord
	}
	out := NewOutbound(log, h.notifier, h.repos.UserFlow, nil)
	return NewEventRouter(log, RouterConfig{Concurrency: 4}, h.repos, h.story, h.survey, out, deduper, coord, nil)
}

func postback(id, source string, data linemsg.PostbackData) Event {
	return Event{ID: id, Type: EventPostback, SourceID: source, ReplyToken: "rt-" + id, Postback: data.Encode()}
}

func TestRouterFollowEnrollsOnce(t *testing.T) {
	for _, withRedis := range []bool{true, false} {
		t.Run(fmt.Sprintf("redis=%v", withRedis), func(t *testing.T) {
			h := newHarness(t, testutil.ProfileStoryOptions{})
			router := newTestRouter(t, h, withRedis)

			ev := Event{ID: "ev-1", Type: EventFollow, SourceID: "U1"}
			require.NoError(t, router.Dispatch(context.Background(), ev))
			require.NoError(t, router.Dispatch(context.Background(), ev))

			assert.Len(t, h.notifier.pushesTo("U1"), 1, "redelivered event is not dispatched")
			var processed int64
			require.NoError(t, h.db.Model(&types.ProcessedEvent{}).Count(&processed).Error)
			if withRedis {
				assert.EqualValues(t, 0, processed)
			} else {
				assert.EqualValues(t, 1, processed)
			}
		})
	}
}

func TestRouterSurveyPostbacksReply(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	router := newTestRouter(t, h, true)
	ctx := context.Background()
	require.NoError(t, router.Dispatch(ctx, Event{ID: "f", Type: EventFollow, SourceID: "U1"}))

	start := choiceData(t, h.notifier.pushesTo("U1")[0].Messages[0])[0]
	require.NoError(t, router.Dispatch(ctx, postback("p1", "U1", start)))
	require.Equal(t, 1, h.notifier.replyCount())

	grade := h.ps.Grades[0].ID.String()
	require.NoError(t, router.Dispatch(ctx, postback("p2", "U1", linemsg.PostbackData{
		Action:      linemsg.ActionAnswer,
		SurveyID:    h.ps.Survey.ID.String(),
		QuestionID:  h.ps.Question(t, 1).ID.String(),
		OptionID:    grade,
		OptionValue: grade,
		OrderIndex:  1,
	})))
	assert.Equal(t, 2, h.notifier.replyCount())

	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.session(t, c).CurrentOrderIndex)
}

func TestRouterCompleteFlowAcknowledges(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	router := newTestRouter(t, h, true)
	ctx := context.Background()
	require.NoError(t, router.Dispatch(ctx, Event{ID: "f", Type: EventFollow, SourceID: "U1"}))
	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	before := h.flow(t, c.ID)

	require.NoError(t, router.Dispatch(ctx, postback("cf", "U1", linemsg.PostbackData{
		Action:  linemsg.ActionCompleteFlow,
		StoryID: h.ps.Story.ID.String(),
		NodeID:  h.ps.FollowUp.ID.String(),
	})))
	h.notifier.mu.Lock()
	require.Len(t, h.notifier.replies, 1)
	assert.Equal(t, linemsg.Text(MsgFlowAcknowledge), h.notifier.replies[0].Messages[0])
	assert.Equal(t, "rt-cf", h.notifier.replies[0].ReplyToken)
	h.notifier.mu.Unlock()

	after := h.flow(t, c.ID)
	assert.Equal(t, before.CurrentNodeID, after.CurrentNodeID, "acknowledgment leaves the flow alone")
}

func TestRouterDropsBadInput(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	router := newTestRouter(t, h, true)
	ctx := context.Background()
	require.NoError(t, router.Dispatch(ctx, Event{ID: "f", Type: EventFollow, SourceID: "U1"}))

	cases := []Event{
		{ID: "a", Type: EventPostback, SourceID: "U1", ReplyToken: "rt", Postback: "not json"},
		{ID: "b", Type: EventPostback, SourceID: "U1", ReplyToken: "rt", Postback: `{"action":"answer","surveyId":"nope"}`},
		{ID: "c", Type: EventPostback, SourceID: "U1", ReplyToken: "rt", Postback: `{"action":"teleport"}`},
		{ID: "d", Type: EventPostback, SourceID: "U1", ReplyToken: "rt", Postback: `{"action":"complete_flow"}`},
		{ID: "e", Type: EventMessage, SourceID: "U1", ReplyToken: "rt", Text: "hello"},
		{ID: "f2", Type: EventMessage, SourceID: "U404", ReplyToken: "rt", Text: "hello"},
		{ID: "g", Type: EventFollow, SourceID: ""},
		{ID: "h", Type: EventType("beacon"), SourceID: "U1"},
	}
	for _, ev := range cases {
		assert.NoError(t, router.Dispatch(ctx, ev), ev.ID)
	}
	assert.Equal(t, 0, h.notifier.replyCount())
}

func TestRouterAnswerOnCompletedSurveyIsSilent(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{NoFollowUp: true})
	router := newTestRouter(t, h, true)
	ctx := context.Background()
	require.NoError(t, router.Dispatch(ctx, Event{ID: "f", Type: EventFollow, SourceID: "U1"}))
	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&types.SurveySession{}).Where("customer_id = ?", c.ID).
		Update("status", types.SessionCompleted).Error)

	require.NoError(t, router.Dispatch(ctx, postback("p", "U1", linemsg.PostbackData{
		Action:      linemsg.ActionAnswer,
		SurveyID:    h.ps.Survey.ID.String(),
		QuestionID:  h.ps.Question(t, 7).ID.String(),
		OptionValue: "yes",
		OrderIndex:  7,
	})))
	assert.Equal(t, 0, h.notifier.replyCount())
}

func TestRouterBatchHandlesEverySource(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	router := newTestRouter(t, h, true)

	var events []Event
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("U%d", i)
		events = append(events,
			Event{ID: "follow-" + id, Type: EventFollow, SourceID: id},
			Event{ID: "follow-" + id, Type: EventFollow, SourceID: id},
		)
	}
	require.NoError(t, router.DispatchBatch(context.Background(), events))

	var flows int64
	require.NoError(t, h.db.Model(&types.UserFlow{}).Count(&flows).Error)
	assert.EqualValues(t, 5, flows)
	for i := 1; i <= 5; i++ {
		assert.Len(t, h.notifier.pushesTo(fmt.Sprintf("U%d", i)), 1)
	}
}

func TestRouterUnfollowBlocks(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	router := newTestRouter(t, h, false)
	ctx := context.Background()
	require.NoError(t, router.Dispatch(ctx, Event{ID: "f", Type: EventFollow, SourceID: "U1"}))
	require.NoError(t, router.Dispatch(ctx, Event{ID: "u", Type: EventUnfollow, SourceID: "U1"}))

	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	assert.True(t, c.IsBlocked)
}
