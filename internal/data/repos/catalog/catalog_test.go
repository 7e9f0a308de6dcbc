package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
)

func TestCatalogOrdering(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCatalogRepo(db, testutil.Logger(t))
	dbc := testutil.Ctx()
	testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{Universities: 14})

	unis, err := repo.Universities(dbc, 12)
	require.NoError(t, err)
	require.Len(t, unis, 12)
	assert.Equal(t, "大学01", unis[0].Name)

	prefs, err := repo.PrefecturesByGroup(dbc, "あ", 12)
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "大阪府", prefs[0].Name)

	none, err := repo.PrefecturesByGroup(dbc, "", 12)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertFreeTextUniversity(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCatalogRepo(db, testutil.Logger(t))
	dbc := testutil.Ctx()
	ps := testutil.SeedProfileStory(t, db, testutil.ProfileStoryOptions{})

	existing, err := repo.UpsertFreeTextUniversity(dbc, "  "+ps.Universities[1].Name+" ")
	require.NoError(t, err)
	assert.Equal(t, ps.Universities[1].ID, existing)

	created, err := repo.UpsertFreeTextUniversity(dbc, "北海道大学")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created)

	again, err := repo.UpsertFreeTextUniversity(dbc, "北海道大学")
	require.NoError(t, err)
	assert.Equal(t, created, again)

	listed, err := repo.Universities(dbc, 0)
	require.NoError(t, err)
	assert.Len(t, listed, len(ps.Universities))

	_, err = repo.UpsertFreeTextUniversity(dbc, "   ")
	assert.Error(t, err)
}
