package models

import "time"

const (
	ReturnStatusReturned = "returned"
	ReturnStatusOverdue  = "overdue"
	ReturnStatusOnLoan   = "on_loan"
)

// BorrowRecord is one loan of a book copy to a member.
// A record with no ReturnDate is an open loan.
type BorrowRecord struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	MemberID   int64      `json:"member_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`

	BookTitle string `json:"book_title,omitempty"`
}

// IsOverdue is true for an open loan whose due date lies before now.
// Overdue is never stored; it is always derived at read time.
func IsOverdue(returnDate *time.Time, dueDate, now time.Time) bool {
	return returnDate == nil && now.After(dueDate)
}

func (r BorrowRecord) IsOpen() bool {
	return r.ReturnDate == nil
}

func (r BorrowRecord) IsOverdue(now time.Time) bool {
	return IsOverdue(r.ReturnDate, r.DueDate, now)
}

func (r BorrowRecord) ReturnStatus(now time.Time) string {
	switch {
	case r.ReturnDate != nil:
		return ReturnStatusReturned
	case r.IsOverdue(now):
		return ReturnStatusOverdue
	default:
		return ReturnStatusOnLoan
	}
}
