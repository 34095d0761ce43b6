package membership

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/auth"
	"librarydesk/internal/testutil"
	"librarydesk/pkg/models"
)

func TestRepo_CreateAndLookup(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	userID := testutil.CreateUser(t, db, "grace")

	m, err := repo.Create(ctx, NewMember{UserID: userID, MembershipNumber: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", m.MembershipNumber)
	assert.Equal(t, models.MembershipRegular, m.MembershipStatus)
	assert.Equal(t, "grace Tester", m.FullName)

	byUser, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, byUser)
	assert.Equal(t, m.ID, byUser.ID)

	byNumber, err := repo.GetByNumber(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, byNumber)
	assert.Equal(t, m.ID, byNumber.ID)

	missing, err := repo.GetByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepo_CreateGeneratesNumber(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	userID := testutil.CreateUser(t, db, "linus")

	m, err := repo.Create(context.Background(), NewMember{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, m.MembershipNumber, 10)
	assert.Equal(t, byte('M'), m.MembershipNumber[0])
}

func TestRepo_CreateRejectsDuplicates(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	first := testutil.CreateUser(t, db, "alan")
	second := testutil.CreateUser(t, db, "barbara")

	_, err := repo.Create(ctx, NewMember{UserID: first, MembershipNumber: "N1"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, NewMember{UserID: first, MembershipNumber: "N2"})
	assert.ErrorIs(t, err, ErrDuplicate, "one member per user")

	_, err = repo.Create(ctx, NewMember{UserID: second, MembershipNumber: "N1"})
	assert.ErrorIs(t, err, ErrDuplicate, "membership numbers are unique")

	_, err = repo.Create(ctx, NewMember{UserID: "ghost", MembershipNumber: "N3"})
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = repo.Create(ctx, NewMember{UserID: second, MembershipNumber: "WAYTOOLONG1"})
	assert.Error(t, err)
}

func TestRepo_SetStatusAndList(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	m, err := repo.Create(ctx, NewMember{UserID: testutil.CreateUser(t, db, "ken")})
	require.NoError(t, err)
	_, err = repo.Create(ctx, NewMember{UserID: testutil.CreateUser(t, db, "dennis")})
	require.NoError(t, err)

	missing, err := repo.SetStatus(ctx, 999, models.MembershipPremium)
	require.NoError(t, err)
	assert.Nil(t, missing)

	updated, err := repo.SetStatus(ctx, m.ID, models.MembershipSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipSuspended, updated.MembershipStatus)

	_, err = repo.SetStatus(ctx, m.ID, "gold")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	suspended, err := repo.List(ctx, models.MembershipSuspended)
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.Equal(t, m.ID, suspended[0].ID)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func newUser(username string) auth.User {
	return auth.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    "Grace",
		LastName:     "Hopper",
		PasswordHash: "x",
	}
}

func countUsers(t *testing.T, repo *Repo, username string) int {
	t.Helper()
	var n int
	require.NoError(t, repo.DB.Get(&n, `SELECT COUNT(*) FROM users WHERE username = ?`, username))
	return n
}

func TestRepo_CreateWithUser(t *testing.T) {
	repo := NewRepo(testutil.NewDB(t))

	m, err := repo.CreateWithUser(context.Background(), newUser("grace"), NewMember{MembershipNumber: "lib7"})
	require.NoError(t, err)
	assert.Equal(t, "LIB7", m.MembershipNumber)
	assert.Equal(t, "Grace Hopper", m.FullName)
	assert.Equal(t, 1, countUsers(t, repo, "grace"))
}

func TestRepo_CreateWithUser_FailedMemberLeavesNoUser(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, NewMember{UserID: testutil.CreateUser(t, db, "taken"), MembershipNumber: "LIB1"})
	require.NoError(t, err)

	_, err = repo.CreateWithUser(ctx, newUser("grace"), NewMember{MembershipNumber: "ab-12"})
	require.Error(t, err)
	assert.Equal(t, 0, countUsers(t, repo, "grace"), "invalid number")

	_, err = repo.CreateWithUser(ctx, newUser("grace"), NewMember{MembershipNumber: "lib1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 0, countUsers(t, repo, "grace"), "number already in use")

	// the same username goes through once the number is fixed
	_, err = repo.CreateWithUser(ctx, newUser("grace"), NewMember{MembershipNumber: "lib2"})
	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, repo, "grace"))
}
