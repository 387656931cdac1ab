package teams_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/tasks"
	"github.com/acectf/registration/internal/teams"
	"github.com/acectf/registration/internal/testutil"
)

func newTeamService(t *testing.T) (*teams.Service, *gorm.DB, *testutil.FakeEnqueuer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	queue := &testutil.FakeEnqueuer{}
	svc := teams.NewService(db, queue, slog.Default())
	return svc, db, queue
}

func registrationStatus(t *testing.T, db *gorm.DB, user *models.User) models.RegistrationStatus {
	t.Helper()
	var reg models.Registration
	require.NoError(t, db.First(&reg, "user_id = ?", user.ID).Error)
	return reg.Status
}

func TestCreateTeam(t *testing.T) {
	svc, db, queue := newTeamService(t)
	ctx := context.Background()

	t.Run("verified user creates a team", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())

		team, err := svc.Create(ctx, user.ID, "Les Hackers")
		require.NoError(t, err)

		assert.Equal(t, "Les Hackers", team.Name)
		assert.Equal(t, user.ID, team.CaptainID)
		assert.Len(t, team.InviteCode, 6)
		assert.False(t, team.IsComplete)

		var reloaded models.User
		require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
		require.NotNil(t, reloaded.TeamID)
		assert.Equal(t, team.ID, *reloaded.TeamID)

		assert.Equal(t, models.StatusTeamIncomplete, registrationStatus(t, db, user))
		assert.Equal(t, 1, queue.TypeCount(tasks.TypeWebhookDeliver))
	})

	t.Run("unverified user is rejected", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db)

		_, err := svc.Create(ctx, user.ID, "Équipe Fantôme")
		assert.ErrorIs(t, err, teams.ErrNotVerified)
	})

	t.Run("user already in a team is rejected", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())
		testutil.CreateTestTeam(t, db, user, "Première Équipe")

		_, err := svc.Create(ctx, user.ID, "Deuxième Équipe")
		assert.ErrorIs(t, err, teams.ErrAlreadyInTeam)
	})

	t.Run("duplicate name is rejected", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())

		_, err := svc.Create(ctx, user.ID, "Les Hackers")
		assert.ErrorIs(t, err, teams.ErrNameTaken)
	})

	t.Run("name length is enforced", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())

		_, err := svc.Create(ctx, user.ID, "ab")
		assert.ErrorIs(t, err, teams.ErrNameInvalid)

		_, err = svc.Create(ctx, user.ID, strings.Repeat("x", 51))
		assert.ErrorIs(t, err, teams.ErrNameInvalid)
	})

	t.Run("name length counts runes, not bytes", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())

		// 2 characters but 4 bytes
		_, err := svc.Create(ctx, user.ID, "éé")
		assert.ErrorIs(t, err, teams.ErrNameInvalid)

		// 50 characters but 100 bytes
		team, err := svc.Create(ctx, user.ID, strings.Repeat("é", 50))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("é", 50), team.Name)
	})

	// keep this last, it breaks the teams table for the rest of the test
	t.Run("storage failure is not reported as name taken", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db, testutil.Verified())
		require.NoError(t, db.Migrator().DropTable(&models.Team{}))

		_, err := svc.Create(ctx, user.ID, "Les Malchanceux")
		require.Error(t, err)
		assert.NotErrorIs(t, err, teams.ErrNameTaken)
	})
}

func TestJoinTeam(t *testing.T) {
	svc, db, queue := newTeamService(t)
	ctx := context.Background()

	captain := testutil.CreateTestUser(t, db, testutil.Verified())
	team, err := svc.Create(ctx, captain.ID, "Cyber Lycéens")
	require.NoError(t, err)

	t.Run("join below minimum keeps team incomplete", func(t *testing.T) {
		member := testutil.CreateTestUser(t, db, testutil.Verified())

		joined, err := svc.Join(ctx, member.ID, team.InviteCode)
		require.NoError(t, err)
		assert.False(t, joined.IsComplete)

		assert.Equal(t, models.StatusTeamIncomplete, registrationStatus(t, db, member))
		assert.Equal(t, models.StatusTeamIncomplete, registrationStatus(t, db, captain))
	})

	t.Run("third member completes the team", func(t *testing.T) {
		member := testutil.CreateTestUser(t, db, testutil.Verified())

		joined, err := svc.Join(ctx, member.ID, team.InviteCode)
		require.NoError(t, err)
		assert.True(t, joined.IsComplete)

		// every member moves to team_complete together
		assert.Equal(t, models.StatusTeamComplete, registrationStatus(t, db, captain))
		assert.Equal(t, models.StatusTeamComplete, registrationStatus(t, db, member))

		assert.Equal(t, 1, queue.TypeCount(tasks.TypeTeamProvision))
	})

	t.Run("invite code is case-insensitive", func(t *testing.T) {
		member := testutil.CreateTestUser(t, db, testutil.Verified())

		_, err := svc.Join(ctx, member.ID, " "+strings.ToLower(team.InviteCode)+" ")
		require.NoError(t, err)
	})

	t.Run("sixth member is rejected", func(t *testing.T) {
		fifth := testutil.CreateTestUser(t, db, testutil.Verified())
		_, err := svc.Join(ctx, fifth.ID, team.InviteCode)
		require.NoError(t, err)

		count, err := svc.MemberCount(ctx, team.ID)
		require.NoError(t, err)
		require.EqualValues(t, 5, count)

		sixth := testutil.CreateTestUser(t, db, testutil.Verified())
		_, err = svc.Join(ctx, sixth.ID, team.InviteCode)
		assert.ErrorIs(t, err, teams.ErrTeamFull)

		assert.Equal(t, models.StatusVerified, registrationStatus(t, db, sixth))
	})

	t.Run("unknown invite code", func(t *testing.T) {
		member := testutil.CreateTestUser(t, db, testutil.Verified())

		_, err := svc.Join(ctx, member.ID, "ZZZZZZ")
		assert.ErrorIs(t, err, teams.ErrInviteNotFound)
	})

	t.Run("unverified user cannot join", func(t *testing.T) {
		member := testutil.CreateTestUser(t, db)

		_, err := svc.Join(ctx, member.ID, team.InviteCode)
		assert.ErrorIs(t, err, teams.ErrNotVerified)
	})
}

func TestLeaveTeam(t *testing.T) {
	ctx := context.Background()

	t.Run("member leaving a complete team downgrades the rest", func(t *testing.T) {
		svc, db, _ := newTeamService(t)

		captain := testutil.CreateTestUser(t, db, testutil.Verified())
		team, err := svc.Create(ctx, captain.ID, "Trio Minimal")
		require.NoError(t, err)

		second := testutil.CreateTestUser(t, db, testutil.Verified())
		third := testutil.CreateTestUser(t, db, testutil.Verified())
		_, err = svc.Join(ctx, second.ID, team.InviteCode)
		require.NoError(t, err)
		_, err = svc.Join(ctx, third.ID, team.InviteCode)
		require.NoError(t, err)

		assert.Equal(t, models.StatusTeamComplete, registrationStatus(t, db, captain))

		result, err := svc.Leave(ctx, third.ID)
		require.NoError(t, err)
		assert.False(t, result.TeamDeleted)

		var reloaded models.Team
		require.NoError(t, db.First(&reloaded, "id = ?", team.ID).Error)
		assert.False(t, reloaded.IsComplete)

		// leaver resets to verified, survivors drop back to incomplete
		assert.Equal(t, models.StatusVerified, registrationStatus(t, db, third))
		assert.Equal(t, models.StatusTeamIncomplete, registrationStatus(t, db, captain))
		assert.Equal(t, models.StatusTeamIncomplete, registrationStatus(t, db, second))

		var leaver models.User
		require.NoError(t, db.First(&leaver, "id = ?", third.ID).Error)
		assert.Nil(t, leaver.TeamID)
	})

	t.Run("captain leaving deletes the team", func(t *testing.T) {
		svc, db, queue := newTeamService(t)

		captain := testutil.CreateTestUser(t, db, testutil.Verified())
		team, err := svc.Create(ctx, captain.ID, "Équipe Éphémère")
		require.NoError(t, err)

		member := testutil.CreateTestUser(t, db, testutil.Verified())
		_, err = svc.Join(ctx, member.ID, team.InviteCode)
		require.NoError(t, err)

		result, err := svc.Leave(ctx, captain.ID)
		require.NoError(t, err)
		assert.True(t, result.TeamDeleted)
		assert.Equal(t, "Équipe Éphémère", result.TeamName)

		var count int64
		require.NoError(t, db.Model(&models.Team{}).Where("id = ?", team.ID).Count(&count).Error)
		assert.Zero(t, count)

		assert.Equal(t, models.StatusVerified, registrationStatus(t, db, captain))
		assert.Equal(t, models.StatusVerified, registrationStatus(t, db, member))

		var orphan models.User
		require.NoError(t, db.First(&orphan, "id = ?", member.ID).Error)
		assert.Nil(t, orphan.TeamID)

		assert.GreaterOrEqual(t, queue.TypeCount(tasks.TypeWebhookDeliver), 3)
	})

	t.Run("user without a team", func(t *testing.T) {
		svc, db, _ := newTeamService(t)
		user := testutil.CreateTestUser(t, db, testutil.Verified())

		_, err := svc.Leave(ctx, user.ID)
		assert.ErrorIs(t, err, teams.ErrNotInTeam)
	})
}

func TestAdminDelete(t *testing.T) {
	svc, db, _ := newTeamService(t)
	ctx := context.Background()

	captain := testutil.CreateTestUser(t, db, testutil.Verified())
	team, err := svc.Create(ctx, captain.ID, "Équipe Dissoute")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, team.ID))

	var count int64
	require.NoError(t, db.Model(&models.Team{}).Where("id = ?", team.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, models.StatusVerified, registrationStatus(t, db, captain))

	assert.ErrorIs(t, svc.Delete(ctx, team.ID), teams.ErrTeamNotFound)
}

func TestDerivedCounts(t *testing.T) {
	svc, db, _ := newTeamService(t)
	ctx := context.Background()

	captain := testutil.CreateTestUser(t, db, testutil.Verified())
	team, err := svc.Create(ctx, captain.ID, "Compteurs")
	require.NoError(t, err)

	count, err := svc.MemberCount(ctx, team.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	full, err := svc.IsFull(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, full)

	minOK, err := svc.HasMinimumMembers(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, minOK)

	for i := 0; i < 4; i++ {
		member := testutil.CreateTestUser(t, db, testutil.Verified())
		_, err := svc.Join(ctx, member.ID, team.InviteCode)
		require.NoError(t, err)
	}

	full, err = svc.IsFull(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, full)

	minOK, err = svc.HasMinimumMembers(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, minOK)
}
