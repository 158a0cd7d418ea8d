package badgerdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"riskbot/internal/models"
	"riskbot/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Risks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msgID := 12
	require.NoError(t, s.AddRisk(ctx, models.Risk{ID: "a", UserID: 1, Username: "carol", PostedMessageID: &msgID}))
	require.NoError(t, s.AddRisk(ctx, models.Risk{ID: "b", UserID: 1}))
	require.NoError(t, s.AddRisk(ctx, models.Risk{ID: "c", UserID: 2}))

	risks, err := s.UserRisks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, risks, 2)
	require.NotNil(t, risks[0].PostedMessageID)
	assert.Equal(t, 12, *risks[0].PostedMessageID)

	risks[0].MarkPurged()
	require.NoError(t, s.PutUserRisks(ctx, 1, risks))

	all, err := s.ListRisks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all[1][0].Purged)
	assert.Nil(t, all[1][0].PostedMessageID)

	id, err := s.FindUserByUsername(ctx, "CAROL")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = s.FindUserByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	empty, err := s.UserRisks(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Conditions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1, err := s.AddCondition(ctx, -100, "first")
	require.NoError(t, err)
	c2, err := s.AddCondition(ctx, -100, "second")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)

	removed, err := s.RemoveCondition(ctx, -100, c1.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	conds, err := s.GroupConditions(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, []models.Condition{c2}, conds)

	removed, err = s.RemoveCondition(ctx, -100, c2.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	all, err := s.ListConditions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_DisabledCommandsAndGroups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	changed, err := s.DisableCommand(ctx, -5, "risk")
	require.NoError(t, err)
	assert.True(t, changed)

	disabled, err := storage.IsCommandDisabled(ctx, s, -5, "risk")
	require.NoError(t, err)
	assert.True(t, disabled)

	changed, err = s.EnableCommand(ctx, -5, "risk")
	require.NoError(t, err)
	assert.True(t, changed)

	cmds, err := s.DisabledCommands(ctx, -5)
	require.NoError(t, err)
	assert.Empty(t, cmds)

	require.NoError(t, s.RegisterGroup(ctx, models.Group{ID: -5, Title: "five"}))
	require.NoError(t, s.RegisterGroup(ctx, models.Group{ID: -9, Title: "nine"}))

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Group{{ID: -9, Title: "nine"}, {ID: -5, Title: "five"}}, groups)
}
