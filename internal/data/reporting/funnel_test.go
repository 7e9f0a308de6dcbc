package reporting

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/pointers"
)

func TestFunnelCounts(t *testing.T) {
	gdb := testutil.DB(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	rs := repos.NewSet(gdb, testutil.Logger(t))
	ctx := testutil.Ctx()

	ps := testutil.SeedProfileStory(t, gdb, testutil.ProfileStoryOptions{})
	done := testutil.SeedCustomer(t, gdb, "U1")
	halfway := testutil.SeedCustomer(t, gdb, "U2")

	answer := func(c *types.Customer, order int, value string) {
		resp, err := rs.Response.Upsert(ctx, ps.Survey.ID, c.ID)
		require.NoError(t, err)
		require.NoError(t, rs.Response.SaveOrUpdateAnswer(ctx, resp.ID, ps.Question(t, order).ID, types.AnswerValue{Text: pointers.String(value)}))
	}

	_, err = rs.Session.Upsert(ctx, ps.Survey.ID, done.ID, types.SessionCompleted, 7)
	require.NoError(t, err)
	answer(done, 1, "a")
	answer(done, 2, "b")
	resp, err := rs.Response.Get(ctx, ps.Survey.ID, done.ID)
	require.NoError(t, err)
	require.NoError(t, rs.Response.MarkSubmitted(ctx, resp.ID, time.Now()))

	_, err = rs.Session.Upsert(ctx, ps.Survey.ID, halfway.ID, types.SessionInProgress, 1)
	require.NoError(t, err)
	answer(halfway, 1, "a")

	repo := NewFunnelRepo(sqlx.NewDb(sqlDB, "sqlite3"), testutil.Logger(t))
	f, err := repo.Funnel(context.Background(), ps.Survey.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.Started)
	assert.Equal(t, 1, f.Completed)
	assert.Equal(t, 1, f.Submitted)
	require.Len(t, f.Questions, len(ps.Questions))
	assert.Equal(t, 1, f.Questions[0].OrderIndex)
	assert.Equal(t, 2, f.Questions[0].Answered)
	assert.Equal(t, 1, f.Questions[1].Answered)
	assert.Equal(t, 0, f.Questions[2].Answered)
}

func TestDistributionPostgres(t *testing.T) {
	dsn := os.Getenv("LINEFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set LINEFLOW_TEST_POSTGRES_DSN (a migrated database) to run reporting queries against Postgres")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	defer db.Close()

	repo := NewFunnelRepo(db, testutil.Logger(t))
	out, err := repo.Distribution(context.Background(), uuid.Nil, []int{1, 2})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = repo.Distribution(context.Background(), uuid.Nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
