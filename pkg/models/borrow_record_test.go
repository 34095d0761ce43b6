package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsOverdue(t *testing.T) {
	borrowed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := borrowed.Add(14 * 24 * time.Hour)
	returned := borrowed.Add(20 * 24 * time.Hour)

	testCases := []struct {
		name       string
		returnDate *time.Time
		now        time.Time
		want       bool
	}{
		{name: "open, before due", now: borrowed.Add(10 * 24 * time.Hour), want: false},
		{name: "open, exactly at due", now: due, want: false},
		{name: "open, after due", now: borrowed.Add(15 * 24 * time.Hour), want: true},
		{name: "returned late", returnDate: &returned, now: borrowed.Add(30 * 24 * time.Hour), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsOverdue(tc.returnDate, due, tc.now))
		})
	}
}

func TestBorrowRecord_ReturnStatus(t *testing.T) {
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	returned := now.Add(-time.Hour)

	open := BorrowRecord{DueDate: now.Add(24 * time.Hour)}
	late := BorrowRecord{DueDate: now.Add(-24 * time.Hour)}
	closed := BorrowRecord{DueDate: now.Add(-24 * time.Hour), ReturnDate: &returned}

	assert.Equal(t, ReturnStatusOnLoan, open.ReturnStatus(now))
	assert.Equal(t, ReturnStatusOverdue, late.ReturnStatus(now))
	assert.Equal(t, ReturnStatusReturned, closed.ReturnStatus(now))
	assert.True(t, open.IsOpen())
	assert.False(t, closed.IsOpen())
}

func TestBook_IsAvailable(t *testing.T) {
	assert.True(t, Book{Status: BookStatusAvailable, AvailableCopies: 1}.IsAvailable())
	assert.False(t, Book{Status: BookStatusAvailable, AvailableCopies: 0}.IsAvailable())
	assert.False(t, Book{Status: BookStatusMaintenance, AvailableCopies: 3}.IsAvailable())
	assert.False(t, Book{Status: BookStatusBorrowed, AvailableCopies: 0}.IsAvailable())
}
