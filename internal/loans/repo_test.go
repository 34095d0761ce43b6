package loans_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/loans"
	"librarydesk/internal/testutil"
)

func TestRepo_ListByMemberSplitsActiveAndReturned(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	ctx := context.Background()
	user := f.addMember(t, "ledger")
	first := f.addBook(t, "9780000000101", 1)
	second := f.addBook(t, "9780000000102", 1)
	third := f.addBook(t, "9780000000103", 1)

	r1, err := f.svc.Borrow(ctx, first.ID, user)
	require.NoError(t, err)
	f.clock.Advance(day)
	r2, err := f.svc.Borrow(ctx, second.ID, user)
	require.NoError(t, err)
	f.clock.Advance(day)
	r3, err := f.svc.Borrow(ctx, third.ID, user)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, r2.ID, user)
	require.NoError(t, err)

	memberID, err := f.ledger.MemberIDForUser(ctx, user)
	require.NoError(t, err)
	require.NotZero(t, memberID)

	got, err := f.ledger.ListByMember(ctx, memberID)
	require.NoError(t, err)

	require.Len(t, got.Active, 2)
	assert.Equal(t, r3.ID, got.Active[0].ID)
	assert.Equal(t, r1.ID, got.Active[1].ID)
	assert.Equal(t, third.Title, got.Active[0].BookTitle)

	require.Len(t, got.Returned, 1)
	assert.Equal(t, r2.ID, got.Returned[0].ID)
	assert.NotNil(t, got.Returned[0].ReturnDate)
}

func TestRepo_ListByMemberEmpty(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	user := f.addMember(t, "quiet")

	memberID, err := f.ledger.MemberIDForUser(context.Background(), user)
	require.NoError(t, err)

	got, err := f.ledger.ListByMember(context.Background(), memberID)
	require.NoError(t, err)
	assert.Empty(t, got.Active)
	assert.Empty(t, got.Returned)
	assert.NotNil(t, got.Active)
}

func TestRepo_MemberIDForUnknownUser(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	stranger := testutil.CreateUser(t, f.db, "nomember")

	id, err := f.ledger.MemberIDForUser(context.Background(), stranger)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestRepo_ListOverdue(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	ctx := context.Background()
	early := f.addMember(t, "early")
	late := f.addMember(t, "late")
	book := f.addBook(t, "9780000000110", 3)

	overdue, err := f.svc.Borrow(ctx, book.ID, early)
	require.NoError(t, err)
	f.clock.Advance(10 * day)
	_, err = f.svc.Borrow(ctx, book.ID, late)
	require.NoError(t, err)

	got, err := f.ledger.ListOverdue(ctx, t0.Add(15*day))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)

	_, err = f.svc.Return(ctx, overdue.ID, early)
	require.NoError(t, err)
	got, err = f.ledger.ListOverdue(ctx, t0.Add(15*day))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepo_OpenLoanLookups(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	ctx := context.Background()
	user := f.addMember(t, "lookup")
	a := f.addBook(t, "9780000000120", 1)
	b := f.addBook(t, "9780000000121", 1)

	n, err := f.ledger.CountOpenLoans(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := f.svc.Borrow(ctx, a.ID, user)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, b.ID, user)
	require.NoError(t, err)

	n, err = f.ledger.CountOpenLoans(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, err := f.ledger.HasOpenLoan(ctx, a.ID, user)
	require.NoError(t, err)
	assert.True(t, open)

	_, err = f.svc.Return(ctx, rec.ID, user)
	require.NoError(t, err)

	open, err = f.ledger.HasOpenLoan(ctx, a.ID, user)
	require.NoError(t, err)
	assert.False(t, open)

	n, err = f.ledger.CountOpenLoans(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepo_GetMissing(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	rec, err := f.ledger.Get(context.Background(), 77)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepo_DueReminders(t *testing.T) {
	f := newFixture(t, loans.DefaultPolicy())
	ctx := context.Background()
	early := f.addMember(t, "soon")
	late := f.addMember(t, "later")
	book := f.addBook(t, "9780000000130", 3)

	overdue, err := f.svc.Borrow(ctx, book.ID, early)
	require.NoError(t, err)
	f.clock.Advance(13 * day)
	_, err = f.svc.Borrow(ctx, book.ID, late)
	require.NoError(t, err)

	// early is due at t0+14d, late at t0+27d
	got, err := f.ledger.DueReminders(ctx, t0.Add(13*day), 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].RecordID)
	assert.Equal(t, early, got[0].UserID)
	assert.False(t, got[0].Overdue)

	got, err = f.ledger.DueReminders(ctx, t0.Add(15*day), 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Overdue)
}
