package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

func TestEnrollStartsProfileStory(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")

	assert.Equal(t, "name U1", c.DisplayName)
	assert.True(t, c.OptIn)

	flow := h.flow(t, c.ID)
	assert.Equal(t, h.ps.Entry.ID, flow.CurrentNodeID)
	assert.Equal(t, types.FlowInProgress, flow.Status)
	require.NotNil(t, flow.NextScheduledAt)
	assert.True(t, time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC).Equal(*flow.NextScheduledAt))

	sess := h.session(t, c)
	require.NotNil(t, sess)
	assert.Equal(t, 0, sess.CurrentOrderIndex)

	pushes := h.notifier.pushesTo("U1")
	require.Len(t, pushes, 1)
	data := choiceData(t, pushes[0].Messages[0])
	require.Len(t, data, 1)
	assert.Equal(t, linemsg.ActionStartSurvey, data[0].Action)
	assert.Equal(t, h.ps.Question(t, 1).ID.String(), data[0].QuestionID)

	var logged []types.StoryTarget
	require.NoError(t, h.db.Where("customer_id = ?", c.ID).Find(&logged).Error)
	require.Len(t, logged, 1)
	assert.Equal(t, types.DeliverySent, logged[0].Status)
	assert.Equal(t, h.ps.Entry.ID, logged[0].NodeID)
}

func TestEnrollAgainResumesCurrentQuestion(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")
	grade := h.ps.Grades[0].ID.String()
	h.answer(t, c, 1, grade, grade)

	require.NoError(t, h.story.Unfollow(context.Background(), "U1"))
	h.now = h.now.Add(48 * time.Hour)
	c = h.enroll(t, "U1")
	assert.False(t, c.IsBlocked)

	var flows int64
	require.NoError(t, h.db.Model(&types.UserFlow{}).Where("customer_id = ?", c.ID).Count(&flows).Error)
	assert.EqualValues(t, 1, flows)
	assert.Equal(t, 1, h.session(t, c).CurrentOrderIndex, "re-follow keeps survey progress")

	pushes := h.notifier.pushesTo("U1")
	require.Len(t, pushes, 2)
	data := choiceData(t, pushes[1].Messages[0])
	require.Len(t, data, 1)
	assert.Equal(t, 2, data[0].OrderIndex)

	flow := h.flow(t, c.ID)
	assert.True(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC).Equal(*flow.NextScheduledAt))
}

func TestEnrollOnCompletedFlowSendsNothing(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")
	require.NoError(t, h.db.Model(&types.UserFlow{}).Where("customer_id = ?", c.ID).
		Update("status", types.FlowCompleted).Error)

	h.enroll(t, "U1")
	assert.Len(t, h.notifier.pushesTo("U1"), 1)
}

func TestEnrollWithoutStory(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	require.NoError(t, h.db.Model(&types.Story{}).Where("id = ?", h.ps.Story.ID).Update("title", "renamed").Error)

	err := h.story.Enroll(context.Background(), "U1")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	assert.NotNil(t, c, "the follower is stored even without a story")
}

func TestEnrollDeliveryFailureIsLogged(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	h.notifier.fail("U1")
	c := h.enroll(t, "U1")

	var logged types.StoryTarget
	require.NoError(t, h.db.Where("customer_id = ?", c.ID).Take(&logged).Error)
	assert.Equal(t, types.DeliveryFailed, logged.Status)
	assert.Contains(t, logged.Error, errPushRejected.Error())
	assert.Equal(t, h.ps.Entry.ID, h.flow(t, c.ID).CurrentNodeID)
}

func TestUnfollowBlocksCustomer(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	h.enroll(t, "U1")
	require.NoError(t, h.story.Unfollow(context.Background(), "U1"))

	c, err := h.repos.Customer.GetByLineUserID(testutil.Ctx(), "U1")
	require.NoError(t, err)
	assert.True(t, c.IsBlocked)
	assert.False(t, c.OptIn)
	require.NotNil(t, c.BlockedAt)
}

func TestAdvanceFlowCompletesAtChainEnd(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")
	flow := h.flow(t, c.ID)

	out, err := h.story.AdvanceFlow(context.Background(), flow, c)
	require.NoError(t, err)
	assert.Equal(t, StepSent, out)
	flow = h.flow(t, c.ID)
	assert.Equal(t, h.ps.FollowUp.ID, flow.CurrentNodeID)

	data := choiceData(t, h.notifier.pushesTo("U1")[1].Messages[0])
	require.Len(t, data, 1)
	assert.Equal(t, linemsg.ActionCompleteFlow, data[0].Action)
	assert.Equal(t, h.ps.FollowUp.ID.String(), data[0].NodeID)

	out, err = h.story.AdvanceFlow(context.Background(), flow, c)
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, out)
	flow = h.flow(t, c.ID)
	assert.Equal(t, types.FlowCompleted, flow.Status)
	assert.Nil(t, flow.NextScheduledAt)

	out, err = h.story.AdvanceFlow(context.Background(), flow, c)
	require.NoError(t, err)
	assert.Equal(t, StepSkipped, out)
}

func TestAdvanceFlowKeepsCursorWhenDeliveryFails(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")
	h.notifier.fail("U1")

	_, err := h.story.AdvanceFlow(context.Background(), h.flow(t, c.ID), c)
	assert.ErrorIs(t, err, errPushRejected)
	assert.Equal(t, h.ps.Entry.ID, h.flow(t, c.ID).CurrentNodeID)
}

func TestAdvanceAfterSurveyIgnoresMovedFlow(t *testing.T) {
	h := newHarness(t, testutil.ProfileStoryOptions{})
	c := h.enroll(t, "U1")
	_, err := h.story.AdvanceFlow(context.Background(), h.flow(t, c.ID), c)
	require.NoError(t, err)

	require.NoError(t, h.story.AdvanceAfterSurvey(context.Background(), h.ps.Survey.ID, c.ID))
	assert.Equal(t, h.ps.FollowUp.ID, h.flow(t, c.ID).CurrentNodeID)
	assert.Len(t, h.notifier.pushesTo("U1"), 2)
}
