package story

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lineflow-backend/internal/domain"
)

func TestStoryLookups(t *testing.T) {
	db := testutil.DB(t)
	repo := NewStoryRepo(db, testutil.Logger(t))
	dbc := testutil.Ctx()
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})

	s, err := repo.FindStoryByTitle(dbc, testutil.ProfileStoryTitle)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, ps.Story.ID, s.ID)

	entry, err := repo.FindEntryNode(dbc, s.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ps.Entry.ID, entry.ID)
	require.NotNil(t, entry.NextNodeID)
	assert.Equal(t, ps.FollowUp.ID, *entry.NextNodeID)

	missing, err := repo.FindStoryByTitle(dbc, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListCardsOrdered(t *testing.T) {
	db := testutil.DB(t)
	repo := NewStoryRepo(db, testutil.Logger(t))
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})

	require.NoError(t, db.Create(&types.NodeCard{NodeID: ps.FollowUp.ID, OrderIndex: 2, Title: "B"}).Error)
	require.NoError(t, db.Create(&types.NodeCard{NodeID: ps.FollowUp.ID, OrderIndex: 1, Title: "A"}).Error)

	cards, err := repo.ListCards(testutil.Ctx(), ps.FollowUp.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "A", cards[0].Title)
	assert.Equal(t, "B", cards[1].Title)
}

func TestAdvanceIsConditional(t *testing.T) {
	db := testutil.DB(t)
	flows := NewUserFlowRepo(db, testutil.Logger(t))
	dbc := testutil.Ctx()
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})
	c := testutil.SeedCustomer(t, db, "U1")

	next := time.Now().UTC().Add(time.Hour)
	f, err := flows.Upsert(dbc, c.ID, ps.Story.ID, ps.Entry.ID, types.FlowInProgress, &next)
	require.NoError(t, err)
	require.NotNil(t, f)

	ok, err := flows.Advance(dbc, f.ID, ps.Entry.ID, ps.FollowUp.ID, &next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = flows.Advance(dbc, f.ID, ps.Entry.ID, ps.FollowUp.ID, &next)
	require.NoError(t, err)
	assert.False(t, ok)

	done, err := flows.Complete(dbc, f.ID, ps.FollowUp.ID)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := flows.GetByID(dbc, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FlowCompleted, got.Status)
	assert.Nil(t, got.NextScheduledAt)
}

func TestFindDueSkipsBlockedAndFuture(t *testing.T) {
	db := testutil.DB(t)
	flows := NewUserFlowRepo(db, testutil.Logger(t))
	dbc := testutil.Ctx()
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	older := now.Add(-2 * time.Hour)
	future := now.Add(time.Hour)

	due := testutil.SeedCustomer(t, db, "UDUE")
	dueOld := testutil.SeedCustomer(t, db, "UOLD")
	later := testutil.SeedCustomer(t, db, "ULATER")
	blocked := testutil.SeedCustomer(t, db, "UBLOCK")
	require.NoError(t, db.Model(blocked).Updates(map[string]interface{}{"is_blocked": true, "opt_in": false}).Error)

	for _, x := range []struct {
		id   *types.Customer
		when *time.Time
	}{{due, &past}, {dueOld, &older}, {later, &future}, {blocked, &past}} {
		_, err := flows.Upsert(dbc, x.id.ID, ps.Story.ID, ps.Entry.ID, types.FlowInProgress, x.when)
		require.NoError(t, err)
	}

	got, err := flows.FindDue(dbc, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dueOld.ID, got[0].CustomerID)
	assert.Equal(t, due.ID, got[1].CustomerID)
}

func TestLogDelivery(t *testing.T) {
	db := testutil.DB(t)
	flows := NewUserFlowRepo(db, testutil.Logger(t))
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})
	c := testutil.SeedCustomer(t, db, "U1")

	require.NoError(t, flows.LogDelivery(testutil.Ctx(), &types.StoryTarget{
		NodeID: ps.Entry.ID, CustomerID: c.ID, Status: types.DeliverySent,
	}))
	var n int64
	require.NoError(t, db.Model(&types.StoryTarget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
